// Package engine weaves hook calls into annotated members.
//
// Pipeline per method, in declaration order:
//  1. Resolve method and parameter annotations to hook descriptors
//  2. Construct annotation instances into fresh locals
//  3. Insert parameter Process calls, then PreMethod calls, at entry
//  4. Normalize every return into a single canonical exit
//  5. Wrap the original body in a finally region running PostMethod calls,
//     and a catch region running ExceptionMethod calls before rethrowing
//
// Property accessors are rewritten separately: Set hooks run on setter entry
// and Get hooks run before every getter return.
package engine
