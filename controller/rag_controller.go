package controller

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
	"github.com/itish2003/ragagent/services"
	"github.com/itish2003/ragagent/tools"
)

// RAGController handles the HTTP API. Business logic lives in the services.
type RAGController struct {
	docs      *services.DocumentService
	retrieval *services.RetrievalService
	agent     *services.AgentService
	tables    *services.TableService
	registry  *tools.Registry
	log       *logger.Logger
}

func NewRAGController(
	docs *services.DocumentService,
	retrieval *services.RetrievalService,
	agent *services.AgentService,
	tables *services.TableService,
	registry *tools.Registry,
	log *logger.Logger,
) *RAGController {
	if log == nil {
		log = logger.NewNop()
	}
	return &RAGController{
		docs:      docs,
		retrieval: retrieval,
		agent:     agent,
		tables:    tables,
		registry:  registry,
		log:       log.With("handler", "RAGController"),
	}
}

// POST /api/v1/documents
// Multipart field "file". The file is saved to the upload directory and indexed.
func (rc *RAGController) AddDocument(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		respondBadRequest(c, "a file is required in the 'file' form field")
		return
	}
	if _, _, err := services.ValidateUploadName(fh.Filename); err != nil {
		respondError(c, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	path, err := rc.docs.SaveUpload(fh.Filename, f)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := rc.docs.AddDocument(c.Request.Context(), path)
	if err != nil {
		rc.log.Warn("document not indexed", "path", path, "error", err)
		respondError(c, err)
		return
	}

	msg := "Document indexed successfully"
	status := http.StatusCreated
	if res.Skipped {
		msg = "Document already indexed"
		status = http.StatusOK
	}
	c.JSON(status, models.AddDocumentResponse{
		Message: msg,
		Source:  fh.Filename,
		Chunks:  res.Chunks,
		Skipped: res.Skipped,
	})
}

// DELETE /api/v1/documents
func (rc *RAGController) ResetDocuments(c *gin.Context) {
	if err := rc.docs.Reset(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Vector index cleared"})
}

// POST /api/v1/search
func (rc *RAGController) Search(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	results, err := rc.retrieval.Search(c.Request.Context(), req.Query, req.K)
	if errors.Is(err, models.ErrRetrievalUnavailable) {
		c.JSON(http.StatusOK, models.SearchResponse{Results: []models.SearchResult{}, Message: services.NoDocumentsMessage})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SearchResponse{Results: results})
}

// POST /api/v1/chat
// JSON body, or multipart with "query", "thread_id" and an optional "image".
func (rc *RAGController) Chat(c *gin.Context) {
	var (
		req   models.ChatRequest
		image []byte
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
		if err := c.ShouldBind(&req); err != nil {
			respondBadRequest(c, "Invalid request body: "+err.Error())
			return
		}
		if fh, err := c.FormFile("image"); err == nil {
			f, err := fh.Open()
			if err != nil {
				respondError(c, err)
				return
			}
			image, err = io.ReadAll(io.LimitReader(f, services.MaxImageBytes+1))
			f.Close()
			if err != nil {
				respondError(c, err)
				return
			}
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	var (
		res *models.RunResult
		err error
	)
	if image != nil {
		res, err = rc.agent.RunWithImage(c.Request.Context(), req.Model, req.ThreadID, req.Query, image)
	} else {
		res, err = rc.agent.RunWithModel(c.Request.Context(), req.Model, req.ThreadID, req.Query)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chatResponse(res))
}

func chatResponse(res *models.RunResult) models.ChatResponse {
	return models.ChatResponse{
		Answer:    res.Answer,
		ThreadID:  res.ThreadID,
		State:     res.State,
		Steps:     res.Steps,
		ToolCalls: res.ToolCalls,
	}
}

// GET /api/v1/threads
func (rc *RAGController) ListThreads(c *gin.Context) {
	ids, err := rc.agent.Threads(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"threads": ids})
}

// GET /api/v1/threads/:id
func (rc *RAGController) GetThread(c *gin.Context) {
	id := c.Param("id")
	msgs, found, err := rc.agent.Thread(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "thread not found: " + id, Kind: "InvalidInput"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, models.ThreadResponse{ThreadID: id, Count: len(msgs), Messages: msgs})
}

// GET /api/v1/threads/:id/checkpoints
func (rc *RAGController) GetCheckpoints(c *gin.Context) {
	history, err := rc.agent.Checkpoints(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if history == nil {
		history = []models.CheckpointInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"thread_id": c.Param("id"), "checkpoints": history})
}

// POST /api/v1/threads/:id/resume
func (rc *RAGController) ResumeThread(c *gin.Context) {
	res, err := rc.agent.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chatResponse(res))
}

// POST /api/v1/tables/query
// Multipart "file" (CSV) and "question".
func (rc *RAGController) QueryTable(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		respondBadRequest(c, "a CSV file is required in the 'file' form field")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	res, err := rc.tables.Query(c.Request.Context(), f, c.PostForm("question"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/v1/tools
func (rc *RAGController) ListTools(c *gin.Context) {
	descs := rc.registry.List()
	out := make([]models.ToolInfo, len(descs))
	for i, d := range descs {
		out[i] = models.ToolInfo{
			Name:        d.Name,
			Kind:        d.Kind.String(),
			Description: d.Description,
			Argument:    d.ArgName,
		}
	}
	c.JSON(http.StatusOK, gin.H{"tools": out})
}
