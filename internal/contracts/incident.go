package contracts

import (
	"fmt"
	"time"
)

type CodeReference struct {
	FilePath     string `json:"file_path"`
	LineNumber   int    `json:"line_number"`
	FunctionName string `json:"function_name"`
	Code         string `json:"code,omitempty"`
}

func (r CodeReference) Validate() error {
	if r.FilePath == "" {
		return fmt.Errorf("code reference file_path is required")
	}
	if r.LineNumber < 0 {
		return fmt.Errorf("code reference line_number must be non-negative, got %d", r.LineNumber)
	}
	return nil
}

type EnvironmentContext struct {
	Application string `json:"application"`
	Environment string `json:"environment"`
	Component   string `json:"component"`
}

func (c EnvironmentContext) Validate() error {
	if c.Application == "" || c.Environment == "" || c.Component == "" {
		return fmt.Errorf("environment context requires application, environment and component")
	}
	return nil
}

type Incident struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	Severity       Severity           `json:"severity"`
	Status         IncidentStatus     `json:"status"`
	Context        EnvironmentContext `json:"context"`
	Logs           []LogMessage       `json:"logs"`
	CodeReferences []CodeReference    `json:"code_references"`
	Metrics        []Metric           `json:"metrics"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func (i *Incident) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("incident id is required")
	}
	if i.Title == "" {
		return fmt.Errorf("incident title is required")
	}
	if i.Description == "" {
		return fmt.Errorf("incident description is required")
	}
	if !i.Severity.Valid() {
		return fmt.Errorf("invalid severity: %q", i.Severity)
	}
	if !i.Status.Valid() {
		return fmt.Errorf("invalid status: %q", i.Status)
	}
	if err := i.Context.Validate(); err != nil {
		return err
	}
	for _, ref := range i.CodeReferences {
		if err := ref.Validate(); err != nil {
			return err
		}
	}
	for _, m := range i.Metrics {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	if i.UpdatedAt.Before(i.CreatedAt) {
		return fmt.Errorf("updated_at precedes created_at")
	}
	return nil
}

// AddLog appends a validated log entry and bumps updated_at.
func (i *Incident) AddLog(level, message string) error {
	log, err := NewLogMessage(level, message)
	if err != nil {
		return err
	}
	i.Logs = append(i.Logs, log)
	i.UpdatedAt = time.Now().UTC()
	return nil
}

func (i *Incident) AddCodeReference(filePath string, lineNumber int, functionName, code string) error {
	ref := CodeReference{
		FilePath:     filePath,
		LineNumber:   lineNumber,
		FunctionName: functionName,
		Code:         code,
	}
	if err := ref.Validate(); err != nil {
		return err
	}
	i.CodeReferences = append(i.CodeReferences, ref)
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// SetMonitoringData replaces the incident's logs and metrics with
// retrieved monitoring evidence. Retrieved data supersedes whatever
// the caller supplied at creation time.
func (i *Incident) SetMonitoringData(data MonitoringData) {
	i.Logs = data.Logs
	i.Metrics = data.Metrics
	i.UpdatedAt = time.Now().UTC()
}

type ConversationMessage struct {
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	AnalysisType string    `json:"analysis_type,omitempty"`
}

type AnalysisStep struct {
	StepType        string                 `json:"step_type"`
	Timestamp       time.Time              `json:"timestamp"`
	InputContext    map[string]interface{} `json:"input_context"`
	OutputResult    map[string]interface{} `json:"output_result"`
	ConfidenceScore float64                `json:"confidence_score"`
}

type AnalysisCoverage struct {
	LogsAnalyzed    int  `json:"logs_analyzed"`
	MetricsAnalyzed int  `json:"metrics_analyzed"`
	HasErrorLogs    bool `json:"has_error_logs"`
}

type AnalysisMetadata struct {
	AnalyzedAt             time.Time        `json:"analyzed_at"`
	MonitoringDataIncluded bool             `json:"monitoring_data_included"`
	AnalysisCoverage       AnalysisCoverage `json:"analysis_coverage"`
}

// AnalysisResult is the pipeline's output shape. A failed run carries
// Error plus the fixed "Analysis failed" placeholders for all three
// stage outputs; a successful run carries stage text plus metadata.
type AnalysisResult struct {
	Error               string            `json:"error,omitempty"`
	RootCause           string            `json:"root_cause"`
	CodeAnalysis        string            `json:"code_analysis"`
	PerformanceAnalysis string            `json:"performance_analysis"`
	Metadata            *AnalysisMetadata `json:"metadata,omitempty"`
}

func (r *AnalysisResult) Failed() bool {
	return r != nil && r.Error != ""
}

const analysisFailedPlaceholder = "Analysis failed"

func NewFailureResult(err error) *AnalysisResult {
	return &AnalysisResult{
		Error:               err.Error(),
		RootCause:           analysisFailedPlaceholder,
		CodeAnalysis:        analysisFailedPlaceholder,
		PerformanceAnalysis: analysisFailedPlaceholder,
	}
}

// IncidentState is the mutable analysis record kept 1:1 with an
// incident. All mutation goes through its methods so last_updated
// stays monotonically non-decreasing.
type IncidentState struct {
	IncidentID          string                `json:"incident_id"`
	Incident            *Incident             `json:"incident"`
	AnalysisResults     *AnalysisResult       `json:"analysis_results,omitempty"`
	ConversationHistory []ConversationMessage `json:"conversation_history"`
	AnalysisSteps       []AnalysisStep        `json:"analysis_steps"`
	ConfidenceScores    map[string]float64    `json:"confidence_scores"`
	LastUpdated         time.Time             `json:"last_updated"`
}

func NewIncidentState(incident *Incident) *IncidentState {
	return &IncidentState{
		IncidentID:          incident.ID,
		Incident:            incident,
		ConversationHistory: []ConversationMessage{},
		AnalysisSteps:       []AnalysisStep{},
		ConfidenceScores:    map[string]float64{},
		LastUpdated:         time.Now().UTC(),
	}
}

func (s *IncidentState) AddConversationMessage(role, content, analysisType string) {
	s.ConversationHistory = append(s.ConversationHistory, ConversationMessage{
		Role:         role,
		Content:      content,
		Timestamp:    time.Now().UTC(),
		AnalysisType: analysisType,
	})
	s.touch()
}

func (s *IncidentState) AddAnalysisStep(stepType string, inputContext, outputResult map[string]interface{}, confidence float64) {
	s.AnalysisSteps = append(s.AnalysisSteps, AnalysisStep{
		StepType:        stepType,
		Timestamp:       time.Now().UTC(),
		InputContext:    inputContext,
		OutputResult:    outputResult,
		ConfidenceScore: confidence,
	})
	if s.ConfidenceScores == nil {
		s.ConfidenceScores = map[string]float64{}
	}
	s.ConfidenceScores[stepType] = confidence
	s.touch()
}

func (s *IncidentState) SetIncident(incident *Incident) {
	s.Incident = incident
	s.touch()
}

func (s *IncidentState) SetAnalysisResults(results *AnalysisResult) {
	s.AnalysisResults = results
	s.touch()
}

func (s *IncidentState) touch() {
	now := time.Now().UTC()
	if now.After(s.LastUpdated) {
		s.LastUpdated = now
	}
}
