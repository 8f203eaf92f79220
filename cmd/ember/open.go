package main

import (
	"context"
	"fmt"

	"github.com/emberml/ember/internal/engine"
	"github.com/emberml/ember/internal/logger"
	"github.com/emberml/ember/internal/session"
)

// openSession loads the model named by the common flags and wraps it
// in a session owned by the calling command.
func openSession(ctx context.Context) (*session.Session, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("no model: pass --model or set model in %s", configPath())
	}
	log := logger.FromContext(ctx)
	log.Info("loading model", "path", modelPath, "max_context", maxContext)
	return session.Open(modelPath, engine.Options{
		ContextLen: int(maxContext),
		Threads:    int(threads),
		GPULayers:  int(gpuLayers),
	}, session.WithLogger(log))
}
