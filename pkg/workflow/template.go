// Package workflow loads the multitalk graph template and binds per-job
// parameters into it. The template fixes the graph topology; binding only
// overwrites designated leaf input values and returns a fresh copy, so the
// cached template is never mutated across jobs.
package workflow

import (
	"encoding/json"
	"fmt"
	"os"

	apperrors "multitalk-worker/pkg/errors"
)

// Node is one operation in the graph: a class type plus named input bindings.
// Inputs hold either literal values or [nodeID, outputIndex] references.
type Node struct {
	Inputs    map[string]any `json:"inputs"`
	ClassType string         `json:"class_type,omitempty"`
	Meta      map[string]any `json:"_meta,omitempty"`
}

// Graph maps node identifier to node definition.
type Graph map[string]*Node

// Designated template slots. These node ids are fixed by the template version
// shipped with the worker; a mismatch is a configuration error.
const (
	nodeLoadImage   = "218"
	nodeLoadAudio   = "219"
	nodeAudioCrop   = "223"
	nodePrompts     = "135"
	nodeImageResize = "233"
	nodeAudioEmbeds = "224"
	nodeSampler     = "198"
	nodeFrameRate   = "226"
	nodeFrameCount  = "228"

	// OutputNodeID is the node whose published artifact marks job completion.
	OutputNodeID = "221"
)

// Params are the per-job values bound into the template.
type Params struct {
	ImageName         string
	AudioName         string
	CropStartTime     float64
	CropEndTime       float64
	PositivePrompt    string
	NegativePrompt    string
	AspectRatio       string
	ScaleToSide       string
	ScaleToLength     int
	AudioScale        float64
	AudioCfgScale     float64
	MultiAudioType    string
	NormalizeLoudness bool
	Seed              int64
	Steps             int
	Scheduler         string
	FPS               float64
	NumFrames         int
}

// Template is the immutable, parsed graph template.
type Template struct {
	graph Graph
}

// LoadTemplate reads and parses the graph template at path. The worker cannot
// function without it, so absence is a hard configuration failure.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Newf(apperrors.CodeTemplateNotFound, "Workflow template not found: %s", path)
	}

	var graph Graph
	if err = json.Unmarshal(data, &graph); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTemplateNotFound, "Workflow template is not valid JSON", err)
	}

	return &Template{graph: graph}, nil
}

// NodeCount returns the number of nodes in the template graph.
func (t *Template) NodeCount() int {
	return len(t.graph)
}

// Bind returns a new graph with the per-job parameter slots overwritten.
// The graph topology is never altered. A missing slot means the template
// on disk does not match the version this binder was written for.
func (t *Template) Bind(p Params) (Graph, error) {
	graph, err := t.copyGraph()
	if err != nil {
		return nil, err
	}

	slots := []struct {
		nodeID string
		input  string
		value  any
	}{
		{nodeLoadImage, "image", p.ImageName},
		{nodeLoadAudio, "audio", p.AudioName},
		{nodeAudioCrop, "start_time", p.CropStartTime},
		{nodeAudioCrop, "end_time", p.CropEndTime},
		{nodePrompts, "positive_prompt", p.PositivePrompt},
		{nodePrompts, "negative_prompt", p.NegativePrompt},
		{nodeImageResize, "aspect_ratio", p.AspectRatio},
		{nodeImageResize, "scale_to_side", p.ScaleToSide},
		{nodeImageResize, "scale_to_length", p.ScaleToLength},
		{nodeAudioEmbeds, "audio_scale", p.AudioScale},
		{nodeAudioEmbeds, "audio_cfg_scale", p.AudioCfgScale},
		{nodeAudioEmbeds, "multi_audio_type", p.MultiAudioType},
		{nodeAudioEmbeds, "normalize_loudness", p.NormalizeLoudness},
		{nodeSampler, "seed", p.Seed},
		{nodeSampler, "steps", p.Steps},
		{nodeSampler, "scheduler", p.Scheduler},
		{nodeFrameRate, "value", p.FPS},
		{nodeFrameCount, "value", p.NumFrames},
	}

	for _, s := range slots {
		if err = setInput(graph, s.nodeID, s.input, s.value); err != nil {
			return nil, err
		}
	}

	return graph, nil
}

// copyGraph deep-copies the template graph through JSON so bound graphs share
// no state with the cached template.
func (t *Template) copyGraph() (Graph, error) {
	data, err := json.Marshal(t.graph)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTemplateSlot, "Cannot copy workflow template", err)
	}
	var graph Graph
	if err = json.Unmarshal(data, &graph); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTemplateSlot, "Cannot copy workflow template", err)
	}
	return graph, nil
}

func setInput(graph Graph, nodeID, input string, value any) error {
	node, ok := graph[nodeID]
	if !ok || node.Inputs == nil {
		return apperrors.Newf(apperrors.CodeTemplateSlot,
			"Workflow template mismatch: node %s not found", nodeID)
	}
	if _, ok = node.Inputs[input]; !ok {
		return apperrors.Newf(apperrors.CodeTemplateSlot,
			"Workflow template mismatch: node %s has no input %q", nodeID, input)
	}
	node.Inputs[input] = value
	return nil
}

// String renders the graph for logging.
func (g Graph) String() string {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Sprintf("graph<%d nodes>", len(g))
	}
	return string(data)
}
