package taskqueue

import (
	"log"

	"github.com/hibiken/asynq"
)

// StartWorkers runs the asynq server processing deferred tasks in the
// background and returns the server handle for shutdown.
func StartWorkers(redisAddr string, handler *Handler) *asynq.Server {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{Concurrency: 10},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeActuatorAutoOff, handler.HandleAutoOff)

	go func() {
		log.Printf("TASKQUEUE: Workers started with Redis at %s", redisAddr)
		if err := srv.Run(mux); err != nil {
			log.Fatalf("TASKQUEUE: Failed to start workers: %v", err)
		}
	}()
	return srv
}
