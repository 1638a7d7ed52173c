// Package docintel provides the background task worker engine behind the
// docintel document-processing service: a multi-queue, concurrency-bounded
// pool of worker slots that pull tasks from a broker, execute registered
// handlers, and recycle slots after a configured number of tasks.
//
// The engine is a library, not a service. Import it, configure a broker,
// register handlers as ordinary Go functions, and start the supervisor:
//
//	cfg := docintel.DefaultConfig()
//	eng, err := engine.New(cfg, redisbroker.New(client))
//	engine.Register(eng, task.NewDefinition("process_document", handleDocument))
//	err = eng.Run(ctx)
//
// # Architecture
//
// The broker is a capability interface (enqueue/dequeue/ack/nack) against an
// external transport; docintel ships a Redis client and an in-process broker
// for tests. The router polls queues in strict priority order. Each worker
// slot runs its own fetch→execute→report loop; a recycler retires slots
// after maxTasksPerSlot executions to bound resource drift. All entity IDs
// are TypeIDs — type-prefixed, K-sortable, UUIDv7-based.
package docintel
