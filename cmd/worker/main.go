package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-upi-reconciler/internal/bootstrap"
	"github.com/imrishuroy/go-upi-reconciler/internal/config"
	"github.com/imrishuroy/go-upi-reconciler/internal/logging"
)

func main() {
	cfg, err := config.LoadApp(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.RunLocal)

	rt, err := bootstrap.New(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("failed to init runtime: %v", err)
	}
	defer rt.Close()

	p := NewProcessor(rt.Orders, rt.Audit, logger)

	// RUN_LOCAL=true replays a single event from LOCAL_SQS_BODY.
	if cfg.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			log.Fatalf("LOCAL_SQS_BODY is required when RUN_LOCAL=true")
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local-1", Body: testBody},
			},
		}
		resp, _ := p.Handle(context.Background(), event)
		if len(resp.BatchItemFailures) > 0 {
			log.Fatalf("local handler failed for %d record(s)", len(resp.BatchItemFailures))
		}
		return
	}

	lambda.Start(p.Handle)
}
