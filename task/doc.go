// Package task defines the unit of work processed by the engine: the Task
// model, the tagged ExecutionResult produced by the executor, retryable
// error marking, and the handler registry.
//
// Handlers are registered as typed definitions; the registry erases the
// payload type at registration time by closing over JSON unmarshal:
//
//	def := task.NewDefinition("process_document", func(ctx context.Context, p DocPayload) error {
//	    return pipeline.Process(ctx, p.DocumentID)
//	}, task.WithQueue("documents"))
//	task.RegisterDefinition(reg, def)
//
// A handler signals that its failure is transient by wrapping the error
// with task.Retryable; all other errors are terminal and route the task to
// the dead letter queue without further attempts.
package task
