package il

import "fmt"

// TypeToken returns the TypeDef token of t, or a nil token when t is not in m.
func (m *Module) TypeToken(t *TypeDef) Token {
	for i, td := range m.Types {
		if td == t {
			return MakeToken(TableTypeDef, uint32(i+1))
		}
	}
	return 0
}

// FindType returns the type with the given qualified name.
func (m *Module) FindType(fullName string) (*TypeDef, Token) {
	for i, td := range m.Types {
		if td.FullName() == fullName {
			return td, MakeToken(TableTypeDef, uint32(i+1))
		}
	}
	return nil, 0
}

// TypeDefByToken returns the TypeDef named by t.
func (m *Module) TypeDefByToken(t Token) (*TypeDef, bool) {
	if t.Table() != TableTypeDef || t.IsNil() || int(t.Row()) > len(m.Types) {
		return nil, false
	}
	return m.Types[t.Row()-1], true
}

// TypeRefByToken returns the TypeRef named by t.
func (m *Module) TypeRefByToken(t Token) (*TypeRef, bool) {
	if t.Table() != TableTypeRef || t.IsNil() || int(t.Row()) > len(m.TypeRefs) {
		return nil, false
	}
	return &m.TypeRefs[t.Row()-1], true
}

// MemberRefByToken returns the MemberRef named by t.
func (m *Module) MemberRefByToken(t Token) (*MemberRef, bool) {
	if t.Table() != TableMemberRef || t.IsNil() || int(t.Row()) > len(m.MemberRefs) {
		return nil, false
	}
	return &m.MemberRefs[t.Row()-1], true
}

// MethodCount returns the number of method definitions across all types.
func (m *Module) MethodCount() int {
	n := 0
	for _, td := range m.Types {
		n += len(td.Methods)
	}
	return n
}

// FieldCount returns the number of field definitions across all types.
func (m *Module) FieldCount() int {
	n := 0
	for _, td := range m.Types {
		n += len(td.Fields)
	}
	return n
}

// MethodByToken returns the method definition and its owner for a MethodDef token.
// MethodDef rows number methods of all types in declaration order.
func (m *Module) MethodByToken(t Token) (*MethodDef, *TypeDef, bool) {
	if t.Table() != TableMethodDef || t.IsNil() {
		return nil, nil, false
	}
	row := int(t.Row()) - 1
	for _, td := range m.Types {
		if row < len(td.Methods) {
			return td.Methods[row], td, true
		}
		row -= len(td.Methods)
	}
	return nil, nil, false
}

// MethodToken returns the MethodDef token of md.
func (m *Module) MethodToken(md *MethodDef) Token {
	row := uint32(1)
	for _, td := range m.Types {
		for _, cand := range td.Methods {
			if cand == md {
				return MakeToken(TableMethodDef, row)
			}
			row++
		}
	}
	return 0
}

// FieldByToken returns the field definition and its owner for a Field token.
func (m *Module) FieldByToken(t Token) (*FieldDef, *TypeDef, bool) {
	if t.Table() != TableField || t.IsNil() {
		return nil, nil, false
	}
	row := int(t.Row()) - 1
	for _, td := range m.Types {
		if row < len(td.Fields) {
			return &td.Fields[row], td, true
		}
		row -= len(td.Fields)
	}
	return nil, nil, false
}

// FieldToken returns the Field token of the named field on td.
func (m *Module) FieldToken(td *TypeDef, name string) Token {
	row := uint32(1)
	for _, cand := range m.Types {
		for _, f := range cand.Fields {
			if cand == td && f.Name == name {
				return MakeToken(TableField, row)
			}
			row++
		}
	}
	return 0
}

// TypeName returns the qualified name of a TypeDef or TypeRef token.
func (m *Module) TypeName(t Token) string {
	if m != nil {
		switch t.Table() {
		case TableTypeDef:
			if td, ok := m.TypeDefByToken(t); ok {
				return td.FullName()
			}
		case TableTypeRef:
			if tr, ok := m.TypeRefByToken(t); ok {
				if mr, ok := m.ModuleRefByRow(tr.Scope); ok {
					return "[" + mr.Name + "]" + tr.FullName()
				}
				return tr.FullName()
			}
		}
	}
	return t.String()
}

// ModuleRefByRow returns the ModuleRef at 1-based row.
func (m *Module) ModuleRefByRow(row uint32) (*ModuleRef, bool) {
	if row == 0 || int(row) > len(m.ModuleRefs) {
		return nil, false
	}
	return &m.ModuleRefs[row-1], true
}

// MethodSigOf returns the signature of a MethodDef or MemberRef token.
func (m *Module) MethodSigOf(t Token) (MethodSig, error) {
	switch t.Table() {
	case TableMethodDef:
		if md, _, ok := m.MethodByToken(t); ok {
			return md.Sig, nil
		}
	case TableMemberRef:
		if mr, ok := m.MemberRefByToken(t); ok {
			return mr.Sig, nil
		}
	}
	return MethodSig{}, fmt.Errorf("token %s does not name a method", t)
}

// MethodName formats a MethodDef or MemberRef token as Type::Name.
func (m *Module) MethodName(t Token) string {
	if m == nil {
		return t.String()
	}
	switch t.Table() {
	case TableMethodDef:
		if md, td, ok := m.MethodByToken(t); ok {
			return td.FullName() + "::" + md.Name
		}
	case TableMemberRef:
		if mr, ok := m.MemberRefByToken(t); ok {
			return m.TypeName(mr.Parent) + "::" + mr.Name
		}
	}
	return t.String()
}

// FieldName formats a Field token as Type::Name.
func (m *Module) FieldName(t Token) string {
	if m == nil {
		return t.String()
	}
	if f, td, ok := m.FieldByToken(t); ok {
		return td.FullName() + "::" + f.Name
	}
	return t.String()
}

// ImportModuleRef returns the row of the ModuleRef named name, adding it when missing.
func (m *Module) ImportModuleRef(name string) uint32 {
	for i, mr := range m.ModuleRefs {
		if mr.Name == name {
			return uint32(i + 1)
		}
	}
	m.ModuleRefs = append(m.ModuleRefs, ModuleRef{Name: name})
	return uint32(len(m.ModuleRefs))
}

// ImportTypeRef returns a token for the type namespace.name defined in module scope.
// Types of m itself resolve to their TypeDef token.
func (m *Module) ImportTypeRef(scope, namespace, name string) Token {
	if scope == m.Name {
		if _, tok := m.FindType(qualify(namespace, name)); !tok.IsNil() {
			return tok
		}
	}
	row := m.ImportModuleRef(scope)
	for i, tr := range m.TypeRefs {
		if tr.Scope == row && tr.Namespace == namespace && tr.Name == name {
			return MakeToken(TableTypeRef, uint32(i+1))
		}
	}
	m.TypeRefs = append(m.TypeRefs, TypeRef{Namespace: namespace, Name: name, Scope: row})
	return MakeToken(TableTypeRef, uint32(len(m.TypeRefs)))
}

// ImportMemberRef returns a token for method name on parent, adding a MemberRef when missing.
func (m *Module) ImportMemberRef(parent Token, name string, sig MethodSig) Token {
	for i, mr := range m.MemberRefs {
		if mr.Parent == parent && mr.Name == name && mr.Sig.Equal(sig) {
			return MakeToken(TableMemberRef, uint32(i+1))
		}
	}
	m.MemberRefs = append(m.MemberRefs, MemberRef{Name: name, Parent: parent, Sig: sig})
	return MakeToken(TableMemberRef, uint32(len(m.MemberRefs)))
}

// Methods calls fn for every method in declaration order until fn returns false.
func (m *Module) Methods(fn func(td *TypeDef, md *MethodDef) bool) {
	for _, td := range m.Types {
		for _, md := range td.Methods {
			if !fn(td, md) {
				return
			}
		}
	}
}
