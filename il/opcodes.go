package il

import "fmt"

// Opcode identifies an instruction. One-byte opcodes use their ECMA-335 value;
// two-byte opcodes carry the 0xFE prefix in the high byte.
type Opcode uint16

// PrefixFE is the first byte of every two-byte opcode.
const PrefixFE byte = 0xFE

// Base instructions.
const (
	OpNop        Opcode = 0x00
	OpLdnull     Opcode = 0x14
	OpLdcI4      Opcode = 0x20
	OpLdcI8      Opcode = 0x21
	OpLdcR4      Opcode = 0x22
	OpLdcR8      Opcode = 0x23
	OpDup        Opcode = 0x25
	OpPop        Opcode = 0x26
	OpCall       Opcode = 0x28
	OpRet        Opcode = 0x2A
	OpBr         Opcode = 0x38
	OpBrfalse    Opcode = 0x39
	OpBrtrue     Opcode = 0x3A
	OpBeq        Opcode = 0x3B
	OpBge        Opcode = 0x3C
	OpBgt        Opcode = 0x3D
	OpBle        Opcode = 0x3E
	OpBlt        Opcode = 0x3F
	OpBneUn      Opcode = 0x40
	OpSwitch     Opcode = 0x45
	OpLdindI1    Opcode = 0x46
	OpLdindU1    Opcode = 0x47
	OpLdindI2    Opcode = 0x48
	OpLdindU2    Opcode = 0x49
	OpLdindI4    Opcode = 0x4A
	OpLdindU4    Opcode = 0x4B
	OpLdindI8    Opcode = 0x4C
	OpLdindI     Opcode = 0x4D
	OpLdindR4    Opcode = 0x4E
	OpLdindR8    Opcode = 0x4F
	OpLdindRef   Opcode = 0x50
	OpStindRef   Opcode = 0x51
	OpStindI1    Opcode = 0x52
	OpStindI2    Opcode = 0x53
	OpStindI4    Opcode = 0x54
	OpStindI8    Opcode = 0x55
	OpStindR4    Opcode = 0x56
	OpStindR8    Opcode = 0x57
	OpAdd        Opcode = 0x58
	OpSub        Opcode = 0x59
	OpMul        Opcode = 0x5A
	OpDiv        Opcode = 0x5B
	OpRem        Opcode = 0x5D
	OpAnd        Opcode = 0x5F
	OpOr         Opcode = 0x60
	OpXor        Opcode = 0x61
	OpNeg        Opcode = 0x65
	OpNot        Opcode = 0x66
	OpConvI4     Opcode = 0x69
	OpConvI8     Opcode = 0x6A
	OpConvR8     Opcode = 0x6C
	OpCallvirt   Opcode = 0x6F
	OpLdobj      Opcode = 0x71
	OpLdstr      Opcode = 0x72
	OpNewobj     Opcode = 0x73
	OpCastclass  Opcode = 0x74
	OpIsinst     Opcode = 0x75
	OpThrow      Opcode = 0x7A
	OpLdfld      Opcode = 0x7B
	OpLdflda     Opcode = 0x7C
	OpStfld      Opcode = 0x7D
	OpLdsfld     Opcode = 0x7E
	OpStsfld     Opcode = 0x80
	OpStobj      Opcode = 0x81
	OpBox        Opcode = 0x8C
	OpNewarr     Opcode = 0x8D
	OpLdlen      Opcode = 0x8E
	OpLdelemRef  Opcode = 0x9A
	OpStelemRef  Opcode = 0xA2
	OpUnboxAny   Opcode = 0xA5
	OpEndfinally Opcode = 0xDC
	OpLeave      Opcode = 0xDD
)

// Two-byte (0xFE prefixed) instructions.
const (
	OpCeq     Opcode = 0xFE01
	OpCgt     Opcode = 0xFE02
	OpClt     Opcode = 0xFE04
	OpLdarg   Opcode = 0xFE09
	OpLdarga  Opcode = 0xFE0A
	OpStarg   Opcode = 0xFE0B
	OpLdloc   Opcode = 0xFE0C
	OpLdloca  Opcode = 0xFE0D
	OpStloc   Opcode = 0xFE0E
	OpInitobj Opcode = 0xFE15
	OpRethrow Opcode = 0xFE1A
)

// OperandKind describes the immediate an opcode carries.
type OperandKind byte

const (
	OperandNone OperandKind = iota
	OperandI4
	OperandI8
	OperandR4
	OperandR8
	OperandString
	OperandLocal
	OperandArg
	OperandBranch
	OperandSwitch
	OperandMethod
	OperandField
	OperandType
)

// FlowKind describes how an instruction transfers control.
type FlowKind byte

const (
	FlowNext FlowKind = iota
	FlowBranch
	FlowCondBranch
	FlowCall
	FlowReturn
	FlowThrow
)

// OpInfo is the static description of an opcode.
type OpInfo struct {
	Name    string
	Operand OperandKind
	Flow    FlowKind
}

var opTable = map[Opcode]OpInfo{
	OpNop:        {"nop", OperandNone, FlowNext},
	OpLdnull:     {"ldnull", OperandNone, FlowNext},
	OpLdcI4:      {"ldc.i4", OperandI4, FlowNext},
	OpLdcI8:      {"ldc.i8", OperandI8, FlowNext},
	OpLdcR4:      {"ldc.r4", OperandR4, FlowNext},
	OpLdcR8:      {"ldc.r8", OperandR8, FlowNext},
	OpDup:        {"dup", OperandNone, FlowNext},
	OpPop:        {"pop", OperandNone, FlowNext},
	OpCall:       {"call", OperandMethod, FlowCall},
	OpRet:        {"ret", OperandNone, FlowReturn},
	OpBr:         {"br", OperandBranch, FlowBranch},
	OpBrfalse:    {"brfalse", OperandBranch, FlowCondBranch},
	OpBrtrue:     {"brtrue", OperandBranch, FlowCondBranch},
	OpBeq:        {"beq", OperandBranch, FlowCondBranch},
	OpBge:        {"bge", OperandBranch, FlowCondBranch},
	OpBgt:        {"bgt", OperandBranch, FlowCondBranch},
	OpBle:        {"ble", OperandBranch, FlowCondBranch},
	OpBlt:        {"blt", OperandBranch, FlowCondBranch},
	OpBneUn:      {"bne.un", OperandBranch, FlowCondBranch},
	OpSwitch:     {"switch", OperandSwitch, FlowCondBranch},
	OpLdindI1:    {"ldind.i1", OperandNone, FlowNext},
	OpLdindU1:    {"ldind.u1", OperandNone, FlowNext},
	OpLdindI2:    {"ldind.i2", OperandNone, FlowNext},
	OpLdindU2:    {"ldind.u2", OperandNone, FlowNext},
	OpLdindI4:    {"ldind.i4", OperandNone, FlowNext},
	OpLdindU4:    {"ldind.u4", OperandNone, FlowNext},
	OpLdindI8:    {"ldind.i8", OperandNone, FlowNext},
	OpLdindI:     {"ldind.i", OperandNone, FlowNext},
	OpLdindR4:    {"ldind.r4", OperandNone, FlowNext},
	OpLdindR8:    {"ldind.r8", OperandNone, FlowNext},
	OpLdindRef:   {"ldind.ref", OperandNone, FlowNext},
	OpStindRef:   {"stind.ref", OperandNone, FlowNext},
	OpStindI1:    {"stind.i1", OperandNone, FlowNext},
	OpStindI2:    {"stind.i2", OperandNone, FlowNext},
	OpStindI4:    {"stind.i4", OperandNone, FlowNext},
	OpStindI8:    {"stind.i8", OperandNone, FlowNext},
	OpStindR4:    {"stind.r4", OperandNone, FlowNext},
	OpStindR8:    {"stind.r8", OperandNone, FlowNext},
	OpAdd:        {"add", OperandNone, FlowNext},
	OpSub:        {"sub", OperandNone, FlowNext},
	OpMul:        {"mul", OperandNone, FlowNext},
	OpDiv:        {"div", OperandNone, FlowNext},
	OpRem:        {"rem", OperandNone, FlowNext},
	OpAnd:        {"and", OperandNone, FlowNext},
	OpOr:         {"or", OperandNone, FlowNext},
	OpXor:        {"xor", OperandNone, FlowNext},
	OpNeg:        {"neg", OperandNone, FlowNext},
	OpNot:        {"not", OperandNone, FlowNext},
	OpConvI4:     {"conv.i4", OperandNone, FlowNext},
	OpConvI8:     {"conv.i8", OperandNone, FlowNext},
	OpConvR8:     {"conv.r8", OperandNone, FlowNext},
	OpCallvirt:   {"callvirt", OperandMethod, FlowCall},
	OpLdobj:      {"ldobj", OperandType, FlowNext},
	OpLdstr:      {"ldstr", OperandString, FlowNext},
	OpNewobj:     {"newobj", OperandMethod, FlowCall},
	OpCastclass:  {"castclass", OperandType, FlowNext},
	OpIsinst:     {"isinst", OperandType, FlowNext},
	OpThrow:      {"throw", OperandNone, FlowThrow},
	OpLdfld:      {"ldfld", OperandField, FlowNext},
	OpLdflda:     {"ldflda", OperandField, FlowNext},
	OpStfld:      {"stfld", OperandField, FlowNext},
	OpLdsfld:     {"ldsfld", OperandField, FlowNext},
	OpStsfld:     {"stsfld", OperandField, FlowNext},
	OpStobj:      {"stobj", OperandType, FlowNext},
	OpBox:        {"box", OperandType, FlowNext},
	OpNewarr:     {"newarr", OperandType, FlowNext},
	OpLdlen:      {"ldlen", OperandNone, FlowNext},
	OpLdelemRef:  {"ldelem.ref", OperandNone, FlowNext},
	OpStelemRef:  {"stelem.ref", OperandNone, FlowNext},
	OpUnboxAny:   {"unbox.any", OperandType, FlowNext},
	OpEndfinally: {"endfinally", OperandNone, FlowReturn},
	OpLeave:      {"leave", OperandBranch, FlowBranch},
	OpCeq:        {"ceq", OperandNone, FlowNext},
	OpCgt:        {"cgt", OperandNone, FlowNext},
	OpClt:        {"clt", OperandNone, FlowNext},
	OpLdarg:      {"ldarg", OperandArg, FlowNext},
	OpLdarga:     {"ldarga", OperandArg, FlowNext},
	OpStarg:      {"starg", OperandArg, FlowNext},
	OpLdloc:      {"ldloc", OperandLocal, FlowNext},
	OpLdloca:     {"ldloca", OperandLocal, FlowNext},
	OpStloc:      {"stloc", OperandLocal, FlowNext},
	OpInitobj:    {"initobj", OperandType, FlowNext},
	OpRethrow:    {"rethrow", OperandNone, FlowThrow},
}

// Info returns the static description of op.
func (op Opcode) Info() (OpInfo, bool) {
	info, ok := opTable[op]
	return info, ok
}

// Known reports whether op is part of the instruction set.
func (op Opcode) Known() bool {
	_, ok := opTable[op]
	return ok
}

// IsTwoByte reports whether op is encoded with the 0xFE prefix.
func (op Opcode) IsTwoByte() bool {
	return op > 0xFF
}

func (op Opcode) String() string {
	if info, ok := opTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("op(0x%04X)", uint16(op))
}
