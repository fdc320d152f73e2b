package service

import (
	"time"

	"multitalk-worker/config"
	"multitalk-worker/pkg/comfy"
	"multitalk-worker/pkg/transfer"
	"multitalk-worker/pkg/workflow"
)

// Service wires the job pipeline: transfer client, template binder, and
// engine liaison. The template and clients are built once at startup and
// read-only afterwards.
type Service struct {
	Engine   *comfy.Client
	Transfer *transfer.Client
	Template *workflow.Template

	OutputDir  string
	OutputNode string
}

// NewService builds the pipeline from the loaded config. A missing workflow
// template is a hard configuration failure, not a per-job error.
func NewService() (*Service, error) {
	cfg := config.Conf

	tpl, err := workflow.LoadTemplate(cfg.Paths.Workflow)
	if err != nil {
		return nil, err
	}

	engineCfg := comfy.Config{
		BaseURL:       cfg.Comfy.BaseURL,
		HealthRetries: cfg.Comfy.HealthRetries,
		HealthDelay:   time.Duration(cfg.Comfy.HealthDelayMs) * time.Millisecond,
		SubmitTimeout: time.Duration(cfg.Comfy.SubmitTimeoutSec) * time.Second,
		PollTimeout:   time.Duration(cfg.Comfy.PollTimeoutSec) * time.Second,
	}

	return &Service{
		Engine: comfy.NewClient(engineCfg),
		Transfer: transfer.NewClient(
			cfg.Paths.InputDir,
			time.Duration(cfg.Transfer.DownloadTimeoutSec)*time.Second,
			time.Duration(cfg.Transfer.UploadTimeoutSec)*time.Second,
		),
		Template:   tpl,
		OutputDir:  cfg.Paths.OutputDir,
		OutputNode: cfg.Comfy.OutputNode,
	}, nil
}
