// Package pipelink provides asynchronous, message-oriented communication
// between a parent process and a child process over the child's standard
// streams. Messages are framed as newline-terminated JSON objects carrying
// a name and a map of named arguments.
//
// # Architecture
//
// The library has two symmetric entry points:
//   - Process supervises a spawned child: it writes to the child's stdin
//     and reads from its stdout ("out" channel) and stderr ("err" channel).
//   - Interface is used by the child itself: it reads messages from its own
//     stdin ("in" channel) and writes to its own stdout/stderr.
//
// All message flow goes through unbounded thread-safe queues drained by
// background pump goroutines, so Write never blocks and Read never waits.
//
// # Quick Start
//
// Parent side:
//
//	proc := pipelink.NewProcess(pipelink.ProcessConfig{
//	    Args: []string{"./worker"},
//	})
//	proc.Handle("echo", func(args pipelink.Args) error {
//	    text, _ := args.String("msg")
//	    fmt.Println("child said:", text)
//	    return nil
//	})
//	if err := proc.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer proc.Stop()
//
//	proc.Write(pipelink.NewMessage("ping", pipelink.Args{"msg": "hi"}))
//
// Child side:
//
//	iface := pipelink.NewInterface(pipelink.InterfaceConfig{})
//	for {
//	    msg := iface.Read()
//	    if msg == nil {
//	        time.Sleep(10 * time.Millisecond)
//	        continue
//	    }
//	    iface.Write(pipelink.NewMessage("echo", msg.Args), false)
//	}
//
// A line that is not valid JSON never crashes either peer: it is delivered
// as a message named "jsonerr" with the raw line under the "msg" argument.
package pipelink

// Version is the current library version
const Version = "1.1.2"
