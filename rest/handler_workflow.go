package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/austin-honeyjar/honeyjar-server-sub004/logger"
	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
)

type createWorkflowRequest struct {
	ThreadId string `json:"threadId"`
	Template string `json:"template"`
}

type stepResponseRequest struct {
	Input string `json:"input"`
}

func (s *Server) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{"templates": s.workflowService.ListTemplates()})
}

func (s *Server) HandleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()
	if req.ThreadId == "" || req.Template == "" {
		respondWithError(w, http.StatusBadRequest, "threadId and template are required")
		return
	}
	wf, err := s.workflowService.CreateWorkflow(r.Context(), req.ThreadId, req.Template)
	if err != nil {
		logger.Error("error creating workflow", zap.String("template", req.Template), zap.Error(err))
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, wf)
}

func (s *Server) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, ok := vars["id"]
	if !ok {
		respondWithError(w, http.StatusBadRequest, "workflow id required")
		return
	}
	wf, err := s.workflowService.GetWorkflow(r.Context(), id)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, wf)
}

func (s *Server) HandleGetWorkflowSteps(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, ok := vars["id"]
	if !ok {
		respondWithError(w, http.StatusBadRequest, "workflow id required")
		return
	}
	steps, err := s.workflowService.GetWorkflowSteps(r.Context(), id)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"steps": steps})
}

func (s *Server) HandleGetThreadWorkflow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	threadId, ok := vars["threadId"]
	if !ok {
		respondWithError(w, http.StatusBadRequest, "threadId required")
		return
	}
	wf, err := s.workflowService.GetWorkflowByThread(r.Context(), threadId)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	if wf == nil {
		respondWithJSON(w, http.StatusOK, map[string]any{"workflow": nil})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"workflow": wf})
}

func (s *Server) HandleStepResponse(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	stepId, ok := vars["id"]
	if !ok {
		respondWithError(w, http.StatusBadRequest, "step id required")
		return
	}
	var req stepResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()
	resp, err := s.workflowService.HandleStepResponse(r.Context(), stepId, req.Input)
	if err != nil {
		logger.Error("error handling step response", zap.String("stepId", stepId), zap.Error(err))
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) HandleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, ok := vars["id"]
	if !ok {
		respondWithError(w, http.StatusBadRequest, "workflow id required")
		return
	}
	if err := s.workflowService.DeleteWorkflow(r.Context(), id); err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondOKWithoutBody(w)
}

func statusFor(err error) int {
	switch err.(type) {
	case model.NotFoundError:
		return http.StatusNotFound
	case model.WorkflowConflictError, model.StaleStepError:
		return http.StatusConflict
	case model.DependencyUnmetError:
		return http.StatusUnprocessableEntity
	case model.InvariantViolationError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
