// Package vm is a reference interpreter for il modules.
//
// It executes method bodies directly, including exception regions, managed
// references, boxing and arrays, and resolves calls across modules with a
// resolve.Resolver. Methods that no loaded module defines are dispatched to a
// Host registry by qualified name, which is how tests observe hook calls made
// by woven code.
//
//	host := vm.NewHost()
//	host.Register("Host.Trace::Mark", func(m *vm.Machine, args []vm.Value) (vm.Value, error) {
//	    fmt.Println(args[0])
//	    return nil, nil
//	})
//	machine := vm.New(vm.Config{Resolver: res, Host: host})
//	result, err := machine.Invoke(mod, "Demo.Calc", "Classify", int32(3))
//
// Exceptions that leave the invoked method are returned as *Fault. Any other
// error means the code could not be executed.
package vm
