package il

import "fmt"

// StackEffect is the number of values an instruction pops and pushes.
type StackEffect struct {
	Pops   int
	Pushes int
}

// GetStackEffect returns the stack effect of instr inside a method returning ret.
// Calls are sized from the callee signature resolved against m.
func GetStackEffect(m *Module, instr Instruction, ret TypeSig) (StackEffect, error) {
	switch instr.Opcode {
	case OpNop, OpBr, OpLeave, OpEndfinally, OpRethrow:
		return StackEffect{}, nil
	case OpLdnull, OpLdcI4, OpLdcI8, OpLdcR4, OpLdcR8, OpLdstr,
		OpLdarg, OpLdarga, OpLdloc, OpLdloca, OpLdsfld:
		return StackEffect{Pushes: 1}, nil
	case OpDup:
		return StackEffect{Pops: 1, Pushes: 2}, nil
	case OpPop, OpBrfalse, OpBrtrue, OpSwitch, OpThrow, OpStarg, OpStloc, OpStsfld, OpInitobj:
		return StackEffect{Pops: 1}, nil
	case OpBeq, OpBge, OpBgt, OpBle, OpBlt, OpBneUn,
		OpStindRef, OpStindI1, OpStindI2, OpStindI4, OpStindI8, OpStindR4, OpStindR8,
		OpStfld, OpStobj:
		return StackEffect{Pops: 2}, nil
	case OpStelemRef:
		return StackEffect{Pops: 3}, nil
	case OpLdindI1, OpLdindU1, OpLdindI2, OpLdindU2, OpLdindI4, OpLdindU4, OpLdindI8,
		OpLdindI, OpLdindR4, OpLdindR8, OpLdindRef,
		OpNeg, OpNot, OpConvI4, OpConvI8, OpConvR8,
		OpLdobj, OpCastclass, OpIsinst, OpLdfld, OpLdflda,
		OpBox, OpNewarr, OpLdlen, OpUnboxAny:
		return StackEffect{Pops: 1, Pushes: 1}, nil
	case OpAdd, OpSub, OpMul, OpDiv, OpRem, OpAnd, OpOr, OpXor,
		OpCeq, OpCgt, OpClt, OpLdelemRef:
		return StackEffect{Pops: 2, Pushes: 1}, nil
	case OpRet:
		if ret.IsVoid() {
			return StackEffect{}, nil
		}
		return StackEffect{Pops: 1}, nil
	case OpCall, OpCallvirt, OpNewobj:
		tok, ok := instr.Token()
		if !ok {
			return StackEffect{}, fmt.Errorf("%s without method token", instr.Opcode)
		}
		sig, err := m.MethodSigOf(tok)
		if err != nil {
			return StackEffect{}, err
		}
		if instr.Opcode == OpNewobj {
			return StackEffect{Pops: len(sig.Params), Pushes: 1}, nil
		}
		eff := StackEffect{Pops: sig.ArgCount()}
		if !sig.Return.IsVoid() {
			eff.Pushes = 1
		}
		return eff, nil
	}
	return StackEffect{}, fmt.Errorf("no stack effect for %s", instr.Opcode)
}

// ComputeMaxStack runs a stack-height flow analysis over body and returns the
// deepest evaluation stack any path reaches. Paths that meet with different
// heights, and pops from an empty stack, are errors.
func ComputeMaxStack(m *Module, sig MethodSig, body *MethodBody) (uint32, error) {
	n := len(body.Code)
	if n == 0 {
		return 0, nil
	}
	heights := make([]int, n)
	for i := range heights {
		heights[i] = -1
	}

	var work []int
	merge := func(at, h int) error {
		if at < 0 || at >= n {
			return fmt.Errorf("control transfer to %d outside body", at)
		}
		switch heights[at] {
		case -1:
			heights[at] = h
			work = append(work, at)
		case h:
		default:
			return fmt.Errorf("instruction %d reached with stack heights %d and %d", at, heights[at], h)
		}
		return nil
	}

	if err := merge(0, 0); err != nil {
		return 0, err
	}
	for _, eh := range body.Handlers {
		entry := 0
		if eh.Kind == HandlerCatch {
			entry = 1
		}
		if err := merge(eh.HandlerStart, entry); err != nil {
			return 0, fmt.Errorf("handler: %w", err)
		}
	}

	maxHeight := 0
	for _, h := range heights {
		if h > maxHeight {
			maxHeight = h
		}
	}

	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		instr := body.Code[pc]

		eff, err := GetStackEffect(m, instr, sig.Return)
		if err != nil {
			return 0, fmt.Errorf("instruction %d: %w", pc, err)
		}
		h := heights[pc]
		if eff.Pops > h {
			return 0, fmt.Errorf("instruction %d (%s): stack underflow", pc, instr.Opcode)
		}
		h = h - eff.Pops + eff.Pushes
		if h > maxHeight {
			maxHeight = h
		}

		info, _ := instr.Opcode.Info()
		if (info.Flow == FlowBranch || info.Flow == FlowCondBranch) && !instr.IsBranch() {
			return 0, fmt.Errorf("instruction %d (%s): missing branch target", pc, instr.Opcode)
		}
		if instr.Opcode == OpLeave {
			// leave empties the evaluation stack.
			if err := merge(instr.Targets()[0], 0); err != nil {
				return 0, err
			}
			continue
		}
		switch info.Flow {
		case FlowReturn, FlowThrow:
			continue
		case FlowBranch:
			if err := merge(instr.Targets()[0], h); err != nil {
				return 0, err
			}
			continue
		case FlowCondBranch:
			for _, t := range instr.Targets() {
				if err := merge(t, h); err != nil {
					return 0, err
				}
			}
		}
		if pc+1 >= n {
			return 0, fmt.Errorf("instruction %d (%s): control falls off the end of the body", pc, instr.Opcode)
		}
		if err := merge(pc+1, h); err != nil {
			return 0, err
		}
	}
	return uint32(maxHeight), nil
}
