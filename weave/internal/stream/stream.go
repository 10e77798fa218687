// Package stream provides anchor-based editing of a method's instruction
// sequence.
//
// A Stream keeps instructions in an arena linked in execution order. An
// Anchor names one instruction and stays valid across insertions anywhere in
// the body; only removing that instruction invalidates it. While editing,
// branch operands and exception region bounds are held as anchors, so
// insertions never need index fix-ups. Finish flattens the stream back into
// an il.MethodBody.
package stream

import (
	"github.com/wippyai/il-weaver/errors"
	"github.com/wippyai/il-weaver/il"
)

// Anchor is a stable handle to an instruction in a Stream.
type Anchor int

// None is the absent anchor. As an exclusive region end it means "end of body".
const None Anchor = -1

// Label is the branch operand of an instruction held in a Stream.
type Label struct {
	Target Anchor
}

// SwitchLabels is the switch operand of an instruction held in a Stream.
type SwitchLabels struct {
	Targets []Anchor
}

// Region is an exception handler region with anchor bounds.
// End bounds are exclusive; None as an end means the end of the body.
type Region struct {
	Kind         il.HandlerKind
	TryStart     Anchor
	TryEnd       Anchor
	HandlerStart Anchor
	HandlerEnd   Anchor
	CatchType    il.Token
}

type node struct {
	instr   il.Instruction
	prev    Anchor
	next    Anchor
	removed bool
}

// Stream is an editable instruction sequence.
type Stream struct {
	nodes      []node
	regions    []Region
	locals     []il.TypeSig
	head       Anchor
	tail       Anchor
	initLocals bool
}

// New builds a stream from body. The body is not modified.
func New(body *il.MethodBody) (*Stream, error) {
	s := &Stream{
		head:       None,
		tail:       None,
		locals:     append([]il.TypeSig(nil), body.Locals...),
		initLocals: body.InitLocals,
	}
	n := len(body.Code)
	at := func(idx int) (Anchor, error) {
		if idx < 0 || idx > n {
			return None, errors.InvalidStream("index %d outside body of %d instructions", idx, n)
		}
		if idx == n {
			return None, nil
		}
		return Anchor(idx), nil
	}

	for i, instr := range body.Code {
		switch imm := instr.Imm.(type) {
		case il.BranchImm:
			if imm.Target < 0 || imm.Target >= n {
				return nil, errors.InvalidStream("instruction %d: branch target %d out of range", i, imm.Target)
			}
			instr.Imm = Label{Target: Anchor(imm.Target)}
		case il.SwitchImm:
			targets := make([]Anchor, len(imm.Targets))
			for j, t := range imm.Targets {
				if t < 0 || t >= n {
					return nil, errors.InvalidStream("instruction %d: switch target %d out of range", i, t)
				}
				targets[j] = Anchor(t)
			}
			instr.Imm = SwitchLabels{Targets: targets}
		}
		s.link(instr)
	}

	for i, h := range body.Handlers {
		var r Region
		var err error
		r.Kind, r.CatchType = h.Kind, h.CatchType
		if r.TryStart, err = at(h.TryStart); err != nil {
			return nil, err
		}
		if r.TryEnd, err = at(h.TryEnd); err != nil {
			return nil, err
		}
		if r.HandlerStart, err = at(h.HandlerStart); err != nil {
			return nil, err
		}
		if r.HandlerEnd, err = at(h.HandlerEnd); err != nil {
			return nil, err
		}
		if r.TryStart == None || r.HandlerStart == None {
			return nil, errors.InvalidStream("handler %d starts at end of body", i)
		}
		s.regions = append(s.regions, r)
	}
	return s, nil
}

// link appends a new node at the tail.
func (s *Stream) link(instr il.Instruction) Anchor {
	a := Anchor(len(s.nodes))
	s.nodes = append(s.nodes, node{instr: instr, prev: s.tail, next: None})
	if s.tail != None {
		s.nodes[s.tail].next = a
	} else {
		s.head = a
	}
	s.tail = a
	return a
}

func (s *Stream) check(a Anchor) error {
	if a < 0 || int(a) >= len(s.nodes) {
		return errors.InvalidStream("unknown anchor %d", a)
	}
	if s.nodes[a].removed {
		return errors.InvalidStream("anchor %d was removed", a)
	}
	return nil
}

func (s *Stream) checkOperand(instr il.Instruction) error {
	switch imm := instr.Imm.(type) {
	case il.BranchImm, il.SwitchImm:
		return errors.InvalidStream("%s: index operands are not allowed while editing; use Label", instr.Opcode)
	case Label:
		return s.check(imm.Target)
	case SwitchLabels:
		for _, t := range imm.Targets {
			if err := s.check(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// Valid reports whether a names a live instruction.
func (s *Stream) Valid(a Anchor) bool {
	return s.check(a) == nil
}

// First returns the first instruction, or None for an empty stream.
func (s *Stream) First() Anchor { return s.head }

// Last returns the last instruction, or None for an empty stream.
func (s *Stream) Last() Anchor { return s.tail }

// Next returns the instruction after a, or None.
func (s *Stream) Next(a Anchor) Anchor {
	if s.check(a) != nil {
		return None
	}
	return s.nodes[a].next
}

// Prev returns the instruction before a, or None.
func (s *Stream) Prev(a Anchor) Anchor {
	if s.check(a) != nil {
		return None
	}
	return s.nodes[a].prev
}

// Len returns the number of live instructions.
func (s *Stream) Len() int {
	n := 0
	for a := s.head; a != None; a = s.nodes[a].next {
		n++
	}
	return n
}

// Get returns the instruction at a.
func (s *Stream) Get(a Anchor) (il.Instruction, error) {
	if err := s.check(a); err != nil {
		return il.Instruction{}, err
	}
	return s.nodes[a].instr, nil
}

// Each calls fn for every live instruction in order. The next anchor is read
// before fn runs, so fn may insert before or replace the current instruction.
func (s *Stream) Each(fn func(a Anchor, instr il.Instruction) error) error {
	for a := s.head; a != None; {
		next := s.nodes[a].next
		if err := fn(a, s.nodes[a].instr); err != nil {
			return err
		}
		a = next
	}
	return nil
}

// Anchors returns the live anchors in order.
func (s *Stream) Anchors() []Anchor {
	var out []Anchor
	for a := s.head; a != None; a = s.nodes[a].next {
		out = append(out, a)
	}
	return out
}

// InsertBefore places instr immediately before a and returns its anchor.
// The relative order of existing instructions is preserved.
func (s *Stream) InsertBefore(a Anchor, instr il.Instruction) (Anchor, error) {
	if err := s.check(a); err != nil {
		return None, err
	}
	if err := s.checkOperand(instr); err != nil {
		return None, err
	}
	n := Anchor(len(s.nodes))
	prev := s.nodes[a].prev
	s.nodes = append(s.nodes, node{instr: instr, prev: prev, next: a})
	s.nodes[a].prev = n
	if prev != None {
		s.nodes[prev].next = n
	} else {
		s.head = n
	}
	return n, nil
}

// InsertAfter places instr immediately after a and returns its anchor.
func (s *Stream) InsertAfter(a Anchor, instr il.Instruction) (Anchor, error) {
	if err := s.check(a); err != nil {
		return None, err
	}
	if err := s.checkOperand(instr); err != nil {
		return None, err
	}
	n := Anchor(len(s.nodes))
	next := s.nodes[a].next
	s.nodes = append(s.nodes, node{instr: instr, prev: a, next: next})
	s.nodes[a].next = n
	if next != None {
		s.nodes[next].prev = n
	} else {
		s.tail = n
	}
	return n, nil
}

// Append places instr at the end of the body.
func (s *Stream) Append(instr il.Instruction) (Anchor, error) {
	if err := s.checkOperand(instr); err != nil {
		return None, err
	}
	return s.link(instr), nil
}

// InsertSeqBefore places seq immediately before a, in order, and returns the
// anchors of the first and last inserted instructions.
func (s *Stream) InsertSeqBefore(a Anchor, seq []il.Instruction) (first, last Anchor, err error) {
	first, last = None, None
	for _, instr := range seq {
		n, err := s.InsertBefore(a, instr)
		if err != nil {
			return None, None, err
		}
		if first == None {
			first = n
		}
		last = n
	}
	return first, last, nil
}

// InsertSeqAfter places seq immediately after a, in order.
func (s *Stream) InsertSeqAfter(a Anchor, seq []il.Instruction) (first, last Anchor, err error) {
	first, last = None, None
	cur := a
	for _, instr := range seq {
		n, err := s.InsertAfter(cur, instr)
		if err != nil {
			return None, None, err
		}
		if first == None {
			first = n
		}
		last, cur = n, n
	}
	return first, last, nil
}

// Replace swaps the instruction at a for instr. The anchor keeps its
// identity, so branches and region bounds that name it are unaffected.
func (s *Stream) Replace(a Anchor, instr il.Instruction) error {
	if err := s.check(a); err != nil {
		return err
	}
	if err := s.checkOperand(instr); err != nil {
		return err
	}
	s.nodes[a].instr = instr
	return nil
}

// Remove unlinks the instruction at a and invalidates the anchor. Branches and
// region bounds that named it are moved to its successor.
func (s *Stream) Remove(a Anchor) error {
	if err := s.check(a); err != nil {
		return err
	}
	nd := &s.nodes[a]
	succ := nd.next
	for cur := s.head; cur != None; cur = s.nodes[cur].next {
		if cur == a {
			continue
		}
		switch imm := s.nodes[cur].instr.Imm.(type) {
		case Label:
			if imm.Target == a {
				if succ == None {
					return errors.InvalidStream("cannot remove last instruction %d: it is a branch target", a)
				}
				s.nodes[cur].instr.Imm = Label{Target: succ}
			}
		case SwitchLabels:
			for i, t := range imm.Targets {
				if t == a {
					if succ == None {
						return errors.InvalidStream("cannot remove last instruction %d: it is a switch target", a)
					}
					imm.Targets[i] = succ
				}
			}
		}
	}
	for i := range s.regions {
		r := &s.regions[i]
		for _, b := range []*Anchor{&r.TryStart, &r.TryEnd, &r.HandlerStart, &r.HandlerEnd} {
			if *b == a {
				*b = succ
			}
		}
	}

	if nd.prev != None {
		s.nodes[nd.prev].next = nd.next
	} else {
		s.head = nd.next
	}
	if nd.next != None {
		s.nodes[nd.next].prev = nd.prev
	} else {
		s.tail = nd.prev
	}
	nd.removed = true
	nd.prev, nd.next = None, None
	return nil
}

// AddLocal appends a local of type t and returns its index.
// Indices grow monotonically and are never reused.
func (s *Stream) AddLocal(t il.TypeSig) uint32 {
	s.locals = append(s.locals, t)
	return uint32(len(s.locals) - 1)
}

// SetInitLocals sets the zero-initialization flag.
func (s *Stream) SetInitLocals(v bool) { s.initLocals = v }

// AddRegion registers an exception region. Regions are emitted in
// registration order, so inner regions must be added first.
func (s *Stream) AddRegion(r Region) error {
	for _, b := range []Anchor{r.TryStart, r.HandlerStart} {
		if err := s.check(b); err != nil {
			return err
		}
	}
	for _, b := range []Anchor{r.TryEnd, r.HandlerEnd} {
		if b != None {
			if err := s.check(b); err != nil {
				return err
			}
		}
	}
	s.regions = append(s.regions, r)
	return nil
}

// Regions returns the registered regions.
func (s *Stream) Regions() []Region { return s.regions }

// CloseRegions bounds every region that currently runs to the end of the
// body at end. Call it before appending code that must stay outside them.
func (s *Stream) CloseRegions(end Anchor) error {
	if err := s.check(end); err != nil {
		return err
	}
	for i := range s.regions {
		r := &s.regions[i]
		if r.TryEnd == None {
			r.TryEnd = end
		}
		if r.HandlerEnd == None {
			r.HandlerEnd = end
		}
	}
	return nil
}

// Finish flattens the stream into a method body and recomputes MaxStack for
// a method of signature sig in module m.
func (s *Stream) Finish(m *il.Module, sig il.MethodSig) (*il.MethodBody, error) {
	index := make(map[Anchor]int, len(s.nodes))
	order := s.Anchors()
	for i, a := range order {
		index[a] = i
	}
	pos := func(a Anchor) int {
		if a == None {
			return len(order)
		}
		return index[a]
	}

	body := &il.MethodBody{
		InitLocals: s.initLocals,
		Locals:     append([]il.TypeSig(nil), s.locals...),
		Code:       make([]il.Instruction, 0, len(order)),
	}
	for _, a := range order {
		instr := s.nodes[a].instr
		switch imm := instr.Imm.(type) {
		case Label:
			if !s.Valid(imm.Target) {
				return nil, errors.InvalidStream("%s at %d targets a removed instruction", instr.Opcode, index[a])
			}
			instr.Imm = il.BranchImm{Target: index[imm.Target]}
		case SwitchLabels:
			targets := make([]int, len(imm.Targets))
			for i, t := range imm.Targets {
				if !s.Valid(t) {
					return nil, errors.InvalidStream("switch at %d targets a removed instruction", index[a])
				}
				targets[i] = index[t]
			}
			instr.Imm = il.SwitchImm{Targets: targets}
		}
		body.Code = append(body.Code, instr)
	}

	for _, r := range s.regions {
		if r.TryStart == None || r.HandlerStart == None {
			return nil, errors.InvalidStream("region lost its start")
		}
		body.Handlers = append(body.Handlers, il.ExceptionHandler{
			Kind:         r.Kind,
			TryStart:     pos(r.TryStart),
			TryEnd:       pos(r.TryEnd),
			HandlerStart: pos(r.HandlerStart),
			HandlerEnd:   pos(r.HandlerEnd),
			CatchType:    r.CatchType,
		})
	}

	maxStack, err := il.ComputeMaxStack(m, sig, body)
	if err != nil {
		return nil, errors.New(errors.PhaseWeave, errors.KindInvalidStream).
			Detail("rewritten body is inconsistent").
			Cause(err).
			Build()
	}
	body.MaxStack = maxStack
	return body, nil
}
