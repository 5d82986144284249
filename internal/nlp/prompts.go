package nlp

import (
	"fmt"

	"github.com/incident-agent/backend/internal/llm"
)

const rootCauseSystemPrompt = `You are a site reliability expert analyzing production incidents.
Base your analysis ONLY on the provided incident details, logs and code references.
Be concise, technical and specific about the most likely root cause.`

const codeAnalysisSystemPrompt = `You are a senior engineer reviewing code involved in a production incident.
Identify concrete bugs or issues in the referenced code. Do not speculate beyond the snippets given.`

const performanceSystemPrompt = `You are a performance engineer analyzing production incidents.
Identify performance bottlenecks supported by the provided metrics and logs.`

func rootCausePrompt(incidentDetails, logs, codeReferences string) llm.CompletionRequest {
	userPrompt := fmt.Sprintf(`Analyze the following incident and determine the most likely root cause:

Incident Details:
%s

Logs:
%s

Code References:
%s

Root Cause:`, incidentDetails, logs, codeReferences)

	return llm.CompletionRequest{
		SystemPrompt: rootCauseSystemPrompt,
		UserPrompt:   userPrompt,
	}
}

func codeAnalysisPrompt(codeReferences string) llm.CompletionRequest {
	userPrompt := fmt.Sprintf(`Analyze the following code snippets and identify potential bugs or issues:

Code References:
%s

Potential Bugs:`, codeReferences)

	return llm.CompletionRequest{
		SystemPrompt: codeAnalysisSystemPrompt,
		UserPrompt:   userPrompt,
	}
}

func performancePrompt(incidentDetails, metrics, logs string) llm.CompletionRequest {
	userPrompt := fmt.Sprintf(`Analyze the following incident and monitoring data to identify performance bottlenecks:

Incident Details:
%s

Metrics:
%s

Logs:
%s

Performance Bottlenecks:`, incidentDetails, metrics, logs)

	return llm.CompletionRequest{
		SystemPrompt: performanceSystemPrompt,
		UserPrompt:   userPrompt,
	}
}
