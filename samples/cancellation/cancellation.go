package main

import (
	"context"
	"errors"
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

	b := samples.GetBackend("cancellation")

	r := registry.New()
	if err := mail.Register(r); err != nil {
		panic(err)
	}

	w := worker.New(b, &worker.Options{Registry: r})
	if err := w.Start(ctx); err != nil {
		panic(err)
	}

	c := client.New(b, client.WithWorker(w))

	outgoing := mail.NewMemoryRepository(&mail.Mail{
		Key:        "mail-1",
		Sender:     "alice@example.com",
		Recipients: []string{"bob@unreachable.example"},
	})

	// The remote server never accepts the mail
	deliverer := mail.DeliverFunc(func(ctx context.Context, m *mail.Mail) error {
		return errors.New("connection refused")
	})

	id, err := c.SubmitTask(ctx, mail.NewRemoteDeliveryTask("mail-1", outgoing, deliverer, 1000, time.Second))
	if err != nil {
		panic(err)
	}

	log.Println("Submitted task", id)

	time.Sleep(3 * time.Second)

	status, err := c.CancelTask(ctx, id)
	if err != nil {
		panic(err)
	}

	log.Println("Requested cancellation, status", status)

	d, err := c.AwaitTask(ctx, id, 10*time.Second)
	if err != nil {
		panic(err)
	}

	log.Println("Task finished with status", d.Status)
	if info, ok := d.Information.(*mail.DeliveryInformation); ok {
		log.Printf("Gave up after %d attempts, last error: %s", info.Attempts, info.LastError)
	}

	cancel()
	if err := w.WaitForCompletion(); err != nil {
		panic(err)
	}
}
