package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/austin-honeyjar/honeyjar-server-sub004/logger"
	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
	"github.com/austin-honeyjar/honeyjar-server-sub004/persistence"
	"github.com/austin-honeyjar/honeyjar-server-sub004/util"
)

var _ persistence.WorkflowStorage = new(redisWorkflowStorage)

const WORKFLOW string = "WORKFLOW"
const WORKFLOW_STEPS string = "WORKFLOW_STEPS"
const STEP string = "STEP"
const THREAD string = "THREAD"

// metadata entries are stored as individual hash fields so concurrent
// writers of different keys never overwrite each other
const metaFieldPrefix = "meta:"

type redisWorkflowStorage struct {
	*baseDao
	stepEncDec util.EncoderDecoder[model.WorkflowStep]
}

func NewRedisWorkflowStorage(conf Config) *redisWorkflowStorage {
	return &redisWorkflowStorage{
		baseDao:    newBaseDao(conf),
		stepEncDec: util.NewJsonEncoderDecoder[model.WorkflowStep](),
	}
}

func (rs *redisWorkflowStorage) CreateWorkflow(ctx context.Context, wf model.Workflow) error {
	key := rs.getNamespaceKey(WORKFLOW, wf.Id)
	threadKey := rs.getNamespaceKey(THREAD, wf.ThreadId)
	fields := map[string]any{
		"id":            wf.Id,
		"threadId":      wf.ThreadId,
		"templateId":    wf.TemplateId,
		"status":        string(wf.Status),
		"currentStepId": wf.CurrentStepId,
		"createdAt":     wf.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt":     wf.UpdatedAt.Format(time.RFC3339Nano),
	}
	pipe := rs.redisClient.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.RPush(ctx, threadKey, wf.Id)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("error saving workflow", zap.String("id", wf.Id), zap.Error(err))
		return model.StorageLayerError{}
	}
	return nil
}

func (rs *redisWorkflowStorage) GetWorkflow(ctx context.Context, id string) (*model.Workflow, error) {
	key := rs.getNamespaceKey(WORKFLOW, id)
	fields, err := rs.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		logger.Error("error reading workflow", zap.String("id", id), zap.Error(err))
		return nil, model.StorageLayerError{}
	}
	if len(fields) == 0 {
		return nil, model.NotFoundError{Kind: "workflow", Key: id}
	}
	return workflowFromFields(fields), nil
}

func (rs *redisWorkflowStorage) ListWorkflowsByThread(ctx context.Context, threadId string) ([]model.Workflow, error) {
	threadKey := rs.getNamespaceKey(THREAD, threadId)
	ids, err := rs.redisClient.LRange(ctx, threadKey, 0, -1).Result()
	if err != nil {
		logger.Error("error reading thread workflows", zap.String("threadId", threadId), zap.Error(err))
		return nil, model.StorageLayerError{}
	}
	out := make([]model.Workflow, 0, len(ids))
	for _, id := range ids {
		wf, err := rs.GetWorkflow(ctx, id)
		if err != nil {
			if _, ok := err.(model.NotFoundError); ok {
				continue
			}
			return nil, err
		}
		out = append(out, *wf)
	}
	return out, nil
}

func (rs *redisWorkflowStorage) UpdateWorkflowStatus(ctx context.Context, id string, status model.WorkflowStatus) error {
	key := rs.getNamespaceKey(WORKFLOW, id)
	return rs.hsetExisting(ctx, key, "workflow", id, map[string]any{
		"status":    string(status),
		"updatedAt": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (rs *redisWorkflowStorage) UpdateWorkflowCurrentStep(ctx context.Context, id string, stepId string) error {
	key := rs.getNamespaceKey(WORKFLOW, id)
	return rs.hsetExisting(ctx, key, "workflow", id, map[string]any{
		"currentStepId": stepId,
		"updatedAt":     time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (rs *redisWorkflowStorage) DeleteWorkflow(ctx context.Context, id string) error {
	steps, err := rs.ListSteps(ctx, id)
	if err != nil {
		return err
	}
	wf, err := rs.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	pipe := rs.redisClient.TxPipeline()
	for _, step := range steps {
		pipe.Del(ctx, rs.getNamespaceKey(STEP, step.Id))
	}
	pipe.Del(ctx, rs.getNamespaceKey(WORKFLOW_STEPS, id))
	pipe.Del(ctx, rs.getNamespaceKey(WORKFLOW, id))
	pipe.LRem(ctx, rs.getNamespaceKey(THREAD, wf.ThreadId), 0, id)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("error deleting workflow", zap.String("id", id), zap.Error(err))
		return model.StorageLayerError{}
	}
	return nil
}

func (rs *redisWorkflowStorage) CreateStep(ctx context.Context, step model.WorkflowStep) error {
	meta := step.Metadata
	step.Metadata = nil
	def, err := rs.stepEncDec.Encode(step)
	if err != nil {
		return err
	}
	fields := map[string]any{
		"def":       string(def),
		"status":    string(step.Status),
		"userInput": step.UserInput,
		"output":    step.Output,
		"prompt":    step.Prompt,
	}
	for k, v := range meta {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fields[metaFieldPrefix+k] = string(data)
	}
	pipe := rs.redisClient.TxPipeline()
	pipe.HSet(ctx, rs.getNamespaceKey(STEP, step.Id), fields)
	pipe.RPush(ctx, rs.getNamespaceKey(WORKFLOW_STEPS, step.WorkflowId), step.Id)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("error saving step", zap.String("id", step.Id), zap.Error(err))
		return model.StorageLayerError{}
	}
	return nil
}

func (rs *redisWorkflowStorage) GetStep(ctx context.Context, id string) (*model.WorkflowStep, error) {
	fields, err := rs.redisClient.HGetAll(ctx, rs.getNamespaceKey(STEP, id)).Result()
	if err != nil {
		logger.Error("error reading step", zap.String("id", id), zap.Error(err))
		return nil, model.StorageLayerError{}
	}
	if len(fields) == 0 {
		return nil, model.NotFoundError{Kind: "step", Key: id}
	}
	return rs.stepFromFields(fields)
}

func (rs *redisWorkflowStorage) ListSteps(ctx context.Context, workflowId string) ([]model.WorkflowStep, error) {
	ids, err := rs.redisClient.LRange(ctx, rs.getNamespaceKey(WORKFLOW_STEPS, workflowId), 0, -1).Result()
	if err != nil {
		logger.Error("error reading workflow steps", zap.String("workflowId", workflowId), zap.Error(err))
		return nil, model.StorageLayerError{}
	}
	out := make([]model.WorkflowStep, 0, len(ids))
	for _, id := range ids {
		step, err := rs.GetStep(ctx, id)
		if err != nil {
			if _, ok := err.(model.NotFoundError); ok {
				continue
			}
			return nil, err
		}
		out = append(out, *step)
	}
	return out, nil
}

func (rs *redisWorkflowStorage) UpdateStep(ctx context.Context, id string, update model.StepUpdate) error {
	fields := make(map[string]any)
	if update.Status != nil {
		fields["status"] = string(*update.Status)
	}
	if update.UserInput != nil {
		fields["userInput"] = *update.UserInput
	}
	if update.Output != nil {
		fields["output"] = *update.Output
	}
	if update.Prompt != nil {
		fields["prompt"] = *update.Prompt
	}
	for k, v := range update.Metadata {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fields[metaFieldPrefix+k] = string(data)
	}
	if len(fields) == 0 {
		return nil
	}
	return rs.hsetExisting(ctx, rs.getNamespaceKey(STEP, id), "step", id, fields)
}

func (rs *redisWorkflowStorage) DeleteStep(ctx context.Context, id string) error {
	step, err := rs.GetStep(ctx, id)
	if err != nil {
		return err
	}
	pipe := rs.redisClient.TxPipeline()
	pipe.Del(ctx, rs.getNamespaceKey(STEP, id))
	pipe.LRem(ctx, rs.getNamespaceKey(WORKFLOW_STEPS, step.WorkflowId), 0, id)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("error deleting step", zap.String("id", id), zap.Error(err))
		return model.StorageLayerError{}
	}
	return nil
}

// hsetExisting refuses to resurrect a deleted record with a partial update.
func (rs *redisWorkflowStorage) hsetExisting(ctx context.Context, key string, kind string, id string, fields map[string]any) error {
	exists, err := rs.redisClient.Exists(ctx, key).Result()
	if err != nil {
		logger.Error("error updating "+kind, zap.String("id", id), zap.Error(err))
		return model.StorageLayerError{}
	}
	if exists == 0 {
		return model.NotFoundError{Kind: kind, Key: id}
	}
	if err := rs.redisClient.HSet(ctx, key, fields).Err(); err != nil {
		logger.Error("error updating "+kind, zap.String("id", id), zap.Error(err))
		return model.StorageLayerError{}
	}
	return nil
}

func (rs *redisWorkflowStorage) stepFromFields(fields map[string]string) (*model.WorkflowStep, error) {
	step, err := rs.stepEncDec.Decode([]byte(fields["def"]))
	if err != nil {
		return nil, err
	}
	step.Status = model.StepStatus(fields["status"])
	step.UserInput = fields["userInput"]
	step.Output = fields["output"]
	step.Prompt = fields["prompt"]
	for k, v := range fields {
		if !strings.HasPrefix(k, metaFieldPrefix) {
			continue
		}
		if step.Metadata == nil {
			step.Metadata = make(map[string]any)
		}
		var value any
		if err := json.Unmarshal([]byte(v), &value); err != nil {
			return nil, err
		}
		step.Metadata[strings.TrimPrefix(k, metaFieldPrefix)] = value
	}
	return step, nil
}

func workflowFromFields(fields map[string]string) *model.Workflow {
	createdAt, _ := time.Parse(time.RFC3339Nano, fields["createdAt"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, fields["updatedAt"])
	return &model.Workflow{
		Id:            fields["id"],
		ThreadId:      fields["threadId"],
		TemplateId:    fields["templateId"],
		Status:        model.WorkflowStatus(fields["status"]),
		CurrentStepId: fields["currentStepId"],
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
}
