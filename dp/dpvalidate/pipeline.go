package dpvalidate

import (
	"fmt"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
)

// Pipeline is an ordered list of checks.
type Pipeline struct {
	stages []stage
}

type stage struct {
	s     Stage
	check func(*Context) error
}

var (
	nonEmpty         = stage{StageNonEmpty, checkNonEmpty}
	permission       = stage{StagePermission, checkPermission}
	timeSlot         = stage{StageTimeSlot, checkTimeSlot}
	continuousBlocks = stage{StageContinuousBlocks, checkContinuousBlocks}
	commitValues     = stage{StageCommitValues, checkCommitValues}
	previousInValue  = stage{StagePreviousInValue, checkPreviousInValue}
	orderBounds      = stage{StageOrderBounds, checkOrderBounds}
	libHeight        = stage{StageLIBHeight, checkLIBHeight}
	roundTerminate   = stage{StageRoundTerminate, checkRoundTerminate}
	proposedOrder    = stage{StageProposedOrder, checkProposedOrder}
	nextRoundOrder   = stage{StageNextRoundOrder, checkNextRoundOrder}
	termQuorum       = stage{StageTermQuorum, checkTermQuorum}
	electedVals      = stage{StageElectedValidators, checkElectedValidators}
)

// PipelineFor returns the pipeline that validates payloads of behavior b.
// [dpconsensus.BehaviorNothing] and invalid behaviors have no pipeline.
func PipelineFor(b dpconsensus.Behavior) (Pipeline, error) {
	common := []stage{nonEmpty, permission, timeSlot, continuousBlocks}

	var extra []stage
	switch b {
	case dpconsensus.BehaviorUpdateValue:
		extra = []stage{commitValues, previousInValue, orderBounds, libHeight}
	case dpconsensus.BehaviorTinyBlock:
		// Common checks only.
	case dpconsensus.BehaviorNextRound:
		extra = []stage{roundTerminate, proposedOrder, nextRoundOrder}
	case dpconsensus.BehaviorNextTerm:
		extra = []stage{roundTerminate, proposedOrder, termQuorum, electedVals}
	default:
		return Pipeline{}, fmt.Errorf("no validation pipeline for behavior %s", b)
	}

	return Pipeline{stages: append(common, extra...)}, nil
}

// Stages returns the stages of p in run order.
func (p Pipeline) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.s
	}
	return out
}

// Run applies every check of p to c in order,
// stopping at and returning the first rejection.
// A nil return means c.Proposed may be applied.
func (p Pipeline) Run(c *Context) error {
	for _, s := range p.stages {
		if err := s.check(c); err != nil {
			if _, ok := err.(*RejectionError); ok {
				return err
			}
			return rejectErr(s.s, err)
		}
	}
	return nil
}

// Validate runs the pipeline for c.Behavior over c.
func Validate(c *Context) error {
	p, err := PipelineFor(c.Behavior)
	if err != nil {
		return err
	}
	return p.Run(c)
}
