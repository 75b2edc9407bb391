package server

import (
	"encoding/json"
	"fmt"

	"github.com/acheong08/sentinel/internal/analysis"
	"github.com/acheong08/sentinel/internal/report"
	"github.com/acheong08/sentinel/pkg/models"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// Client -> Server
	TypeAnalyze MessageType = "analyze" // Client sends requirements.txt content
	TypePing    MessageType = "ping"    // Keep-alive

	// Server -> Client
	TypePong          MessageType = "pong"
	TypeDeclarations  MessageType = "declarations"   // Parsed dependency list
	TypeProgress      MessageType = "progress"       // Progress updates
	TypeLog           MessageType = "log"            // Log messages for terminal
	TypePackageRisk   MessageType = "package_risk"   // One risk record, in declaration order
	TypeDistribution  MessageType = "distribution"   // Band counts for the whole manifest
	TypePackageReview MessageType = "package_review" // Per-package AI assessment
	TypeComplete      MessageType = "complete"       // Analysis complete
	TypeError         MessageType = "error"          // Error message
)

// Progress stages
const (
	StageParse  = "parse"
	StageFetch  = "fetch"
	StageScore  = "score"
	StageReview = "review"
)

// Message is the base WebSocket message structure
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AnalyzePayload sent by client to start analysis
type AnalyzePayload struct {
	Requirements string `json:"requirements"` // Raw requirements.txt content
}

// DeclarationsPayload lists what will be assessed
type DeclarationsPayload struct {
	Packages []models.DependencyDeclaration `json:"packages"`
	Count    int                            `json:"count"`
}

// ProgressPayload for progress bar updates
type ProgressPayload struct {
	Percent int    `json:"percent"` // 0-100
	Stage   string `json:"stage"`   // "parse", "fetch", "score", "review"
	Message string `json:"message"` // Human-readable status
}

// LogPayload for terminal output
type LogPayload struct {
	Message string `json:"message"`         // Log message
	Level   string `json:"level,omitempty"` // "info", "success", "warning", "error"
}

// PackageRiskPayload carries one assessed package
type PackageRiskPayload struct {
	Index                     int                          `json:"index"`
	Row                       report.Row                   `json:"row"`
	Vulnerabilities           []models.VulnerabilityRecord `json:"vulnerabilities"`
	VulnerabilityLookupFailed bool                         `json:"vulnerability_lookup_failed"`
}

// DistributionPayload summarises the bands
type DistributionPayload struct {
	models.RiskDistribution
	Total int `json:"total"`
}

// PackageReviewPayload contains the AI assessment for a package
type PackageReviewPayload struct {
	Index      int                          `json:"index"`
	Name       string                       `json:"name"`
	Version    string                       `json:"version"`
	Assessment *analysis.SecurityAssessment `json:"assessment,omitempty"`
	Error      string                       `json:"error,omitempty"`
}

// CompletePayload sent when analysis is done
type CompletePayload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func newMessage(t MessageType, payload any) Message {
	payloadBytes, _ := json.Marshal(payload)
	return Message{Type: t, Payload: payloadBytes}
}

func NewDeclarationsMessage(decls []models.DependencyDeclaration) Message {
	if decls == nil {
		decls = []models.DependencyDeclaration{}
	}
	return newMessage(TypeDeclarations, DeclarationsPayload{Packages: decls, Count: len(decls)})
}

func NewProgressMessage(percent int, stage, message string) Message {
	return newMessage(TypeProgress, ProgressPayload{
		Percent: percent,
		Stage:   stage,
		Message: message,
	})
}

func NewLogMessage(message, level string) Message {
	return newMessage(TypeLog, LogPayload{
		Message: message,
		Level:   level,
	})
}

func NewPackageRiskMessage(index int, record models.RiskRecord) Message {
	return newMessage(TypePackageRisk, PackageRiskPayload{
		Index:                     index,
		Row:                       report.Rows([]models.RiskRecord{record})[0],
		Vulnerabilities:           record.Vulnerabilities,
		VulnerabilityLookupFailed: record.VulnerabilityLookupFailed,
	})
}

func NewDistributionMessage(d models.RiskDistribution) Message {
	return newMessage(TypeDistribution, DistributionPayload{RiskDistribution: d, Total: d.Total()})
}

func NewPackageReviewMessage(review analysis.Review) Message {
	payload := PackageReviewPayload{
		Index:   review.Index,
		Name:    review.Record.Declaration.Name,
		Version: review.Record.Declaration.VersionOr(report.AnyVersion),
	}
	if review.Err != nil {
		payload.Error = review.Err.Error()
	} else {
		assessment := review.Assessment
		payload.Assessment = &assessment
	}
	return newMessage(TypePackageReview, payload)
}

func NewCompleteMessage(success bool, message string) Message {
	return newMessage(TypeComplete, CompletePayload{
		Success: success,
		Message: message,
	})
}

func NewErrorMessage(message string, err error) Message {
	errMsg := message
	if err != nil {
		errMsg = fmt.Sprintf("%s: %v", message, err)
	}
	return newMessage(TypeError, ErrorPayload{Message: errMsg})
}

// ParseAnalyzePayload extracts the analyze payload from a message
func ParseAnalyzePayload(msg Message) (*AnalyzePayload, error) {
	var payload AnalyzePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse analyze payload: %w", err)
	}
	return &payload, nil
}
