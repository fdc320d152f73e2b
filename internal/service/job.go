package service

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"multitalk-worker/internal/dto"
	"multitalk-worker/internal/storage"
	"multitalk-worker/log"
	"multitalk-worker/pkg/comfy"
	apperrors "multitalk-worker/pkg/errors"
	"multitalk-worker/pkg/media"
	"multitalk-worker/pkg/util"
	"multitalk-worker/pkg/workflow"
)

// ProcessJob runs one job start to finish: stage inputs, bind the template,
// submit and poll the engine, deliver the artifact. The first failing stage
// aborts the job; a panic anywhere is converted into an internal-fault error
// so the caller always gets a structured result.
func (s *Service) ProcessJob(req *dto.JobRequest) (payload *dto.JobResultPayload, err error) {
	jobID := uuid.NewString()
	var artifact string

	defer func() {
		if r := recover(); r != nil {
			log.GetLogger().Error("job panic", zap.String("job_id", jobID), zap.Any("panic", r))
			payload = nil
			err = apperrors.Newf(apperrors.CodeInternalFault, "Handler exception: %v", r)
		}
		s.recordResult(jobID, artifact, payload, err)
	}()

	payload, artifact, err = s.runJob(jobID, req)
	return payload, err
}

func (s *Service) runJob(jobID string, req *dto.JobRequest) (*dto.JobResultPayload, string, error) {
	logger := log.GetLogger().With(zap.String("job_id", jobID))

	seed := util.ResolveSeed(req.Seed)
	logger.Info("starting job",
		zap.Int64("seed", seed),
		zap.Int("num_frames", req.NumFrames),
		zap.Float64("fps", req.FPS),
		zap.Float64("duration", float64(req.NumFrames)/req.FPS))

	// Stage the image
	imageName := fmt.Sprintf("input_image_%s.png", util.GenerateRandStringWithUpperLowerNum(8))
	imagePath, err := s.Transfer.Download(req.ImageURL, imageName)
	if err != nil {
		return nil, "", stageFailure("Image download failed", err)
	}
	if ok, reason := media.ValidateImage(imagePath); !ok {
		return nil, "", apperrors.Newf(apperrors.CodeImageInvalid, "Image validation failed: %s", reason)
	} else {
		logger.Info("image validated", zap.String("detail", reason))
	}

	// Stage the audio
	audioName := fmt.Sprintf("input_audio_%s.mp3", util.GenerateRandStringWithUpperLowerNum(8))
	audioPath, err := s.Transfer.Download(req.AudioURL, audioName)
	if err != nil {
		return nil, "", stageFailure("Audio download failed", err)
	}
	if ok, reason := media.ValidateAudio(audioPath); !ok {
		return nil, "", apperrors.Newf(apperrors.CodeAudioInvalid, "Audio validation failed: %s", reason)
	} else {
		logger.Info("audio validated", zap.String("detail", reason))
	}

	// Bind the template
	graph, err := s.Template.Bind(workflow.Params{
		ImageName:         imageName,
		AudioName:         audioName,
		CropStartTime:     req.AudioCropStartTime,
		CropEndTime:       req.AudioCropEndTime,
		PositivePrompt:    req.PositivePrompt,
		NegativePrompt:    req.NegativePrompt,
		AspectRatio:       req.AspectRatio,
		ScaleToSide:       req.ScaleToSide,
		ScaleToLength:     req.ScaleToLength,
		AudioScale:        req.EmbedsAudioScale,
		AudioCfgScale:     req.EmbedsCfgAudioScale,
		MultiAudioType:    req.EmbedsMultiAudioType,
		NormalizeLoudness: req.EmbedsNormalizeLoudness,
		Seed:              seed,
		Steps:             req.Steps,
		Scheduler:         req.Scheduler,
		FPS:               req.FPS,
		NumFrames:         req.NumFrames,
	})
	if err != nil {
		return nil, "", err
	}
	logger.Info("workflow configured", zap.Int("nodes", len(graph)))
	logger.Debug("workflow graph", zap.Stringer("graph", graph))

	// Submit and poll
	if err = s.Engine.WaitReachable(); err != nil {
		return nil, "", err
	}

	promptID, err := s.Engine.SubmitWorkflow(graph)
	if err != nil {
		return nil, "", err
	}

	outcome := s.Engine.PollResult(promptID, s.OutputNode)
	var videoName string
	switch outcome.Kind {
	case comfy.OutcomeCompleted:
		videoName = outcome.Artifact
		logger.Info("workflow completed", zap.String("artifact", videoName))
	case comfy.OutcomeTimedOut:
		return nil, "", apperrors.Newf(apperrors.CodeEngineTimeout, "Workflow failed: %s", outcome.Reason)
	default:
		return nil, "", apperrors.Newf(apperrors.CodeEngineExecutionFailed, "Workflow failed: %s", outcome.Reason)
	}

	// The engine and the worker may disagree about paths; check before upload.
	videoPath := filepath.Join(s.OutputDir, videoName)
	info, err := os.Stat(videoPath)
	if err != nil {
		return nil, "", apperrors.Newf(apperrors.CodeOutputMissing, "Output video not found at %s", videoPath)
	}
	logger.Info("video generated", zap.String("path", videoPath), zap.Int64("bytes", info.Size()))

	if err = s.Transfer.Upload(videoPath, req.VideoUploadURL); err != nil {
		return nil, "", stageFailure("Video upload failed", err)
	}

	return &dto.JobResultPayload{
		VideoSize: info.Size(),
		NumFrames: req.NumFrames,
		Duration:  float64(req.NumFrames) / req.FPS,
	}, videoName, nil
}

// recordResult persists the finished job to the history store. Best-effort: a
// storage failure never fails the job itself.
func (s *Service) recordResult(jobID, artifact string, payload *dto.JobResultPayload, err error) {
	record := &storage.JobRecord{JobId: jobID}
	if err != nil {
		record.Status = 500
		if apperrors.Is(err, apperrors.CodeInvalidParams) {
			record.Status = 400
		}
		record.Message = apperrors.GetMessage(err)
	} else {
		record.Status = 200
		record.Message = "Video created successfully"
		record.ArtifactName = artifact
		if payload != nil {
			record.ArtifactSize = payload.VideoSize
			record.NumFrames = payload.NumFrames
			record.Duration = payload.Duration
		}
	}

	if saveErr := storage.SaveRecord(record); saveErr != nil {
		log.GetLogger().Warn("cannot record job result", zap.String("job_id", jobID), zap.Error(saveErr))
	}
}

// stageFailure prefixes an error with the failing stage so the caller can
// tell a download failure from a validation failure from an upload failure.
func stageFailure(stage string, err error) error {
	return apperrors.Newf(apperrors.GetCode(err), "%s: %s", stage, apperrors.GetMessage(err))
}
