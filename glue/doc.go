// Package glue manages devices, buffers, programs and kernels for OCCA
// backends behind a small handle-based API.
//
// Basic usage:
//
//	rt, err := glue.New(glue.Config{Kinds: []devices.Kind{devices.CPU}})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	env, _ := rt.Environment(devices.CPU)
//	buf, _ := env.NewBuffer(builder.Float32, n)
//	buf.Write(hostData, true)
//
// Every device call of an Environment runs on that environment's in-order
// command queue. Errors carry a Code; see CodeOf.
package glue
