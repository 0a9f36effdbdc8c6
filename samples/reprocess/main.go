package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/cschleiden/go-tasks/client"
	"github.com/cschleiden/go-tasks/registry"
	"github.com/cschleiden/go-tasks/samples"
	"github.com/cschleiden/go-tasks/samples/mail"
	"github.com/cschleiden/go-tasks/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	b := samples.GetBackend("reprocess")

	r := registry.New()
	if err := mail.Register(r); err != nil {
		panic(err)
	}

	w := worker.New(b, &worker.Options{Registry: r, ProgressInterval: time.Second})
	if err := w.Start(ctx); err != nil {
		panic(err)
	}

	c := client.New(b, client.WithWorker(w))

	errorRepo := mail.NewMemoryRepository()
	for i := 0; i < 20; i++ {
		_ = errorRepo.Enqueue(ctx, &mail.Mail{
			Key:        fmt.Sprintf("mail-%d", i),
			Sender:     "alice@example.com",
			Recipients: []string{"bob@example.org"},
			Body:       []byte("Hello"),
		})
	}
	spool := mail.NewMemoryRepository()

	id, err := c.SubmitTask(ctx, mail.NewReprocessTask("var/mail/error", errorRepo, "spool", spool))
	if err != nil {
		panic(err)
	}

	log.Println("Submitted task", id)

	d, err := c.AwaitTask(ctx, id, 30*time.Second)
	if err != nil {
		panic(err)
	}

	log.Println("Task finished with status", d.Status, "result", *d.Result)
	if info, ok := d.Information.(*mail.ReprocessInformation); ok {
		log.Printf("Reprocessed %d of %d mails, %d errors", info.InitialCount-info.RemainingCount, info.InitialCount, info.Errors)
	}

	cancel()
	if err := w.WaitForCompletion(); err != nil {
		panic(err)
	}
}
