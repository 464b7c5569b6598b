package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RowState is the processing state of one image in the batch.
type RowState string

const (
	// StateCropPending: loaded, no crop committed yet.
	StateCropPending RowState = "crop_pending"
	// StateCropCommitted: crop stored, pipeline still running.
	StateCropCommitted RowState = "crop_committed"
	// StatePreviewed: latest pipeline run finished, result available.
	StatePreviewed RowState = "previewed"
	// StateFailed: latest pipeline run errored; FailReason says why.
	StateFailed RowState = "failed"
)

type batchRow struct {
	Source     SourceImage
	Aspect     AspectSelection
	Crop       *CropRect
	Result     *ProcessedResult
	State      RowState
	Gen        uint64
	FailReason string
}

// RowView is an immutable snapshot of one row for the web layer.
type RowView struct {
	ID         uuid.UUID        `json:"id"`
	Name       string           `json:"name"`
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	SizeBytes  int              `json:"size_bytes"`
	State      RowState         `json:"state"`
	Aspect     AspectSelection  `json:"aspect"`
	Crop       *CropRect        `json:"crop,omitempty"`
	Result     *ProcessedResult `json:"result,omitempty"`
	FailReason string           `json:"fail_reason,omitempty"`
}

// Orchestrator owns the batch: one row per image, keyed by a stable ID, with
// image order preserved. The image set, crop parameters and derived results
// live in one table so they can never fall out of alignment; loading a new
// batch atomically replaces all of it.
type Orchestrator struct {
	pipeline Pipeline

	mu        sync.Mutex
	watermark WatermarkConfig
	order     []uuid.UUID
	rows      map[uuid.UUID]*batchRow

	inflight sync.WaitGroup
}

func NewOrchestrator(pipeline Pipeline, watermark WatermarkConfig) *Orchestrator {
	return &Orchestrator{
		pipeline:  pipeline,
		watermark: watermark,
		rows:      map[uuid.UUID]*batchRow{},
	}
}

// Load replaces the whole batch. Results of in-flight pipeline runs for the
// previous batch are discarded when they try to commit.
func (o *Orchestrator) Load(images []SourceImage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.order = make([]uuid.UUID, 0, len(images))
	o.rows = make(map[uuid.UUID]*batchRow, len(images))
	for _, src := range images {
		o.order = append(o.order, src.ID)
		o.rows[src.ID] = &batchRow{
			Source: src,
			Aspect: AspectSelection{Tag: AspectOriginal},
			State:  StateCropPending,
		}
	}
}

// Rows returns snapshots in image order.
func (o *Orchestrator) Rows() []RowView {
	o.mu.Lock()
	defer o.mu.Unlock()

	views := make([]RowView, 0, len(o.order))
	for _, id := range o.order {
		views = append(views, o.rows[id].view(id))
	}
	return views
}

func (r *batchRow) view(id uuid.UUID) RowView {
	v := RowView{
		ID:         id,
		Name:       r.Source.Name,
		Width:      r.Source.Width,
		Height:     r.Source.Height,
		SizeBytes:  r.Source.SizeBytes,
		State:      r.State,
		Aspect:     r.Aspect,
		FailReason: r.FailReason,
	}
	if r.Crop != nil {
		crop := *r.Crop
		v.Crop = &crop
	}
	if r.Result != nil {
		res := *r.Result
		v.Result = &res
	}
	return v
}

// Source returns the original image for an ID.
func (o *Orchestrator) Source(id uuid.UUID) (SourceImage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	row, ok := o.rows[id]
	if !ok {
		return SourceImage{}, false
	}
	return row.Source, true
}

// Result returns the latest processed artifact for an ID, if any.
func (o *Orchestrator) Result(id uuid.UUID) (ProcessedResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	row, ok := o.rows[id]
	if !ok || row.Result == nil {
		return ProcessedResult{}, false
	}
	return *row.Result, true
}

// ArtifactFor returns one image's finished result together with its download
// name in a single snapshot, so a concurrent batch reload can never pair a
// result with a missing source name.
func (o *Orchestrator) ArtifactFor(id uuid.UUID, prefix string) (ProcessedResult, string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	row, ok := o.rows[id]
	if !ok || row.Result == nil {
		return ProcessedResult{}, "", false
	}
	return *row.Result, outputName(prefix, row.Source.Name, row.Result.Format), true
}

// Watermark returns the shared config.
func (o *Orchestrator) Watermark() WatermarkConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.watermark
}

// CommitCrop stores a completed crop gesture and immediately starts the
// pipeline for that image.
func (o *Orchestrator) CommitCrop(ctx context.Context, id uuid.UUID, rect CropRect, aspect AspectSelection) error {
	o.mu.Lock()
	row, ok := o.rows[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("unknown image %s", id)
	}
	crop := rect
	row.Crop = &crop
	row.Aspect = aspect
	row.State = StateCropCommitted
	o.mu.Unlock()

	o.launchRecompute(ctx, id, false)
	return nil
}

// SetWatermark replaces the shared config and re-runs the pipeline for every
// image that already has a committed crop, in image order, one at a time.
func (o *Orchestrator) SetWatermark(ctx context.Context, cfg WatermarkConfig) {
	o.mu.Lock()
	o.watermark = cfg
	ids := append([]uuid.UUID(nil), o.order...)
	o.mu.Unlock()

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		for _, id := range ids {
			o.recomputeRow(ctx, id, false)
		}
	}()
}

// ProcessAll runs the pipeline over every image sequentially, including ones
// without a committed crop (those keep their full frame). Returns an error
// when any image failed; per-image reasons stay on the rows.
func (o *Orchestrator) ProcessAll(ctx context.Context) error {
	o.mu.Lock()
	ids := append([]uuid.UUID(nil), o.order...)
	o.mu.Unlock()

	failed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !o.recomputeRow(ctx, id, true) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(ids))
	}
	return nil
}

// Artifacts returns the finished outputs in image order, named with the
// download prefix.
func (o *Orchestrator) Artifacts(prefix string) []Artifact {
	o.mu.Lock()
	defer o.mu.Unlock()

	var artifacts []Artifact
	for _, id := range o.order {
		row := o.rows[id]
		if row.State != StatePreviewed || row.Result == nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Name: outputName(prefix, row.Source.Name, row.Result.Format),
			Data: row.Result.Data,
		})
	}
	return artifacts
}

// Wait blocks until all asynchronous recomputations have settled.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

type recomputeJob struct {
	id        uuid.UUID
	token     uint64
	source    SourceImage
	crop      CropRect
	watermark WatermarkConfig
}

// begin captures everything a pipeline run needs under the lock and bumps
// the row's generation. Results of runs started earlier carry a stale token
// and are discarded at commit time, so the latest crop/config always wins no
// matter in which order runs finish.
func (o *Orchestrator) begin(id uuid.UUID, includePending bool) (recomputeJob, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	row, ok := o.rows[id]
	if !ok {
		return recomputeJob{}, false
	}
	if row.State == StateCropPending && !includePending {
		return recomputeJob{}, false
	}

	row.Gen++
	job := recomputeJob{
		id:        id,
		token:     row.Gen,
		source:    row.Source,
		watermark: o.watermark,
	}
	if row.Crop != nil {
		job.crop = *row.Crop
	}
	return job, true
}

func (o *Orchestrator) commit(ctx context.Context, job recomputeJob, res ProcessedResult, err error) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	row, ok := o.rows[job.id]
	if !ok || row.Gen != job.token {
		log.Ctx(ctx).Debug().Stringer("id", job.id).Msg("discarding stale pipeline result")
		return err == nil
	}

	if err != nil {
		row.Result = nil
		row.State = StateFailed
		row.FailReason = err.Error()
		return false
	}
	row.Result = &res
	row.State = StatePreviewed
	row.FailReason = ""
	return true
}

// recomputeRow runs the pipeline for one image synchronously. Reports false
// when the run failed.
func (o *Orchestrator) recomputeRow(ctx context.Context, id uuid.UUID, includePending bool) bool {
	job, ok := o.begin(id, includePending)
	if !ok {
		return true
	}

	res, err := o.pipeline.Process(ctx, job.source, job.crop, job.watermark)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("filename", job.source.Name).Msg("pipeline failed")
	}
	return o.commit(ctx, job, res, err)
}

func (o *Orchestrator) launchRecompute(ctx context.Context, id uuid.UUID, includePending bool) {
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		o.recomputeRow(ctx, id, includePending)
	}()
}
