package main

import (
	"net/http"

	"questionbank"

	"github.com/gorilla/mux"
)

const maxGenerateCount = 50

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := s.store.ListQuestionBanks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if banks == nil {
		banks = []questionbank.QuestionBank{}
	}
	writeJSON(w, http.StatusOK, banks)
}

func (s *Server) handleCreateBank(w http.ResponseWriter, r *http.Request) {
	e := s.editorFor(w, r)
	var draft questionbank.BankDraft
	if !decodeBody(w, r, &draft) {
		return
	}
	bank, err := e.submitter.CreateBank(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bank)
}

func (s *Server) handleGetBank(w http.ResponseWriter, r *http.Request) {
	bank, err := s.store.GetQuestionBank(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	bank.RecountQuestions()
	writeJSON(w, http.StatusOK, bank)
}

func (s *Server) handleUpdateBank(w http.ResponseWriter, r *http.Request) {
	e := s.editorFor(w, r)
	var draft questionbank.BankDraft
	if !decodeBody(w, r, &draft) {
		return
	}
	original, err := s.store.GetQuestionBank(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	bank, err := e.submitter.UpdateBank(r.Context(), *original, draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bank)
}

func (s *Server) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	e := s.editorFor(w, r)
	var draft questionbank.QuestionDraft
	if !decodeBody(w, r, &draft) {
		return
	}
	q, err := e.submitter.CreateQuestion(r.Context(), mux.Vars(r)["id"], draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleRemoveQuestion(w http.ResponseWriter, r *http.Request) {
	e := s.editorFor(w, r)
	vars := mux.Vars(r)
	bank, err := e.submitter.RemoveQuestion(r.Context(), vars["id"], vars["qid"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bank)
}

func (s *Server) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	e := s.editorFor(w, r)
	var draft questionbank.QuestionDraft
	if !decodeBody(w, r, &draft) {
		return
	}
	original, err := s.store.GetQuestion(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := e.submitter.UpdateQuestion(r.Context(), *original, draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	e := s.editorFor(w, r)
	var params questionbank.GenerationParams
	if !decodeBody(w, r, &params) {
		return
	}
	params.BankID = mux.Vars(r)["id"]
	if params.Count < 1 || params.Count > maxGenerateCount {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Count must be between 1 and 50."})
		return
	}
	if len(params.Categories) == 0 {
		bank, err := s.store.GetQuestionBank(r.Context(), params.BankID)
		if err != nil {
			writeError(w, err)
			return
		}
		params.Categories = bank.Categories
	}

	questions, err := e.review.Generate(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"questions": questions,
		"pending":   e.review.Pending(params.BankID),
	})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	e := s.editorFor(w, r)
	pending, err := e.review.LoadPending(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	e := s.editorFor(w, r)
	var req idsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := e.review.Approve(r.Context(), mux.Vars(r)["id"], req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	e := s.editorFor(w, r)
	var req idsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := e.review.RejectOrDelete(r.Context(), mux.Vars(r)["id"], req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleProcessReview(w http.ResponseWriter, r *http.Request) {
	e := s.editorFor(w, r)
	var decision questionbank.ReviewDecision
	if !decodeBody(w, r, &decision) {
		return
	}
	bank, err := e.review.ProcessReview(r.Context(), mux.Vars(r)["id"], decision)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bank)
}

type optionTransitionRequest struct {
	State  questionbank.OptionSet    `json:"state"`
	Action questionbank.OptionAction `json:"action"`
}

// handleOptionTransition applies one edit to an option set held by the client
func (s *Server) handleOptionTransition(w http.ResponseWriter, r *http.Request) {
	var req optionTransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.State.Type == "" {
		req.State = questionbank.NewOptionSet(questionbank.TypeSingleChoice)
	}
	writeJSON(w, http.StatusOK, req.State.Apply(req.Action))
}

type categoryToggleRequest struct {
	Categories []string `json:"categories"`
	Selected   []string `json:"selected"`
	// Action is toggle, toggleAll, selectAll or deselectAll
	Action   string `json:"action"`
	FullName string `json:"fullName,omitempty"`
}

type categorySelectionResponse struct {
	Tree        []questionbank.CategoryTreeNode `json:"tree"`
	Selected    []string                        `json:"selected"`
	AllSelected bool                            `json:"allSelected"`
}

func selectionResponse(sel *questionbank.CategorySelector) categorySelectionResponse {
	return categorySelectionResponse{Tree: sel.Roots(), Selected: sel.Selected(), AllSelected: sel.AllSelected()}
}

func (s *Server) handleCategoryToggle(w http.ResponseWriter, r *http.Request) {
	var req categoryToggleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sel := questionbank.NewCategorySelector(questionbank.BuildCategoryTree(req.Categories), req.Selected)
	switch req.Action {
	case "toggle":
		sel.Toggle(req.FullName)
	case "toggleAll":
		sel.ToggleAll()
	case "selectAll":
		sel.SelectAll()
	case "deselectAll":
		sel.DeselectAll()
	case "":
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Unknown action."})
		return
	}
	writeJSON(w, http.StatusOK, selectionResponse(sel))
}

// handleMenuCategories splits a menu's categories into food and beverage selections
func (s *Server) handleMenuCategories(w http.ResponseWriter, r *http.Request) {
	var req categoryToggleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m := questionbank.NewMenuCategorySelection(questionbank.BuildCategoryTree(req.Categories), s.classifier, req.Selected)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"food":         selectionResponse(m.Food),
		"beverage":     selectionResponse(m.Beverage),
		"hasBeverages": m.HasBeverages(),
		"categories":   m.Categories(),
	})
}
