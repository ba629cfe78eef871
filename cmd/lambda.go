package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"layoutbot/handler"
)

func (c *cli) runLambda(ctx context.Context) error {
	a, err := buildApp(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}

	h, err := handler.NewHandler(a.dispatcher, a.retention, c.cfg.WebhookSecret, c.log)
	if err != nil {
		return err
	}

	lambda.Start(h.Handle)
	return nil
}
