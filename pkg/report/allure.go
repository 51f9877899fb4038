package report

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/visual-diff/pkg/core"
	"github.com/devicelab-dev/visual-diff/pkg/logger"
)

// AllureDir is the directory GenerateAllure writes into, relative to the report dir.
const AllureDir = "allure-results"

// Allure result schema types.

// AllureResult represents a single test result in Allure format.
type AllureResult struct {
	UUID          string              `json:"uuid"`
	HistoryID     string              `json:"historyId"`
	FullName      string              `json:"fullName"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	Labels        []AllureLabel       `json:"labels"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureStep represents a step within a test result.
type AllureStep struct {
	Name        string             `json:"name"`
	Status      string             `json:"status"`
	Stage       string             `json:"stage"`
	Start       int64              `json:"start"`
	Stop        int64              `json:"stop"`
	Steps       []AllureStep       `json:"steps"`
	Attachments []AllureAttachment `json:"attachments"`
}

// AllureAttachment represents a file attachment.
type AllureAttachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// AllureLabel represents a label on a test result.
type AllureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureStatusDetails holds failure message and trace.
type AllureStatusDetails struct {
	Message string `json:"message"`
	Trace   string `json:"trace"`
}

// AllureCategory defines a failure category with regex matching.
type AllureCategory struct {
	Name            string   `json:"name"`
	MatchedStatuses []string `json:"matchedStatuses"`
	MessageRegex    string   `json:"messageRegex"`
}

// AllureExecutor holds executor branding info.
type AllureExecutor struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	ReportURL  string `json:"reportUrl"`
	ReportName string `json:"reportName"`
}

// GenerateAllure writes Allure-compatible results for run into
// <reportDir>/allure-results/: one result per spec, one step per screenshot
// with its images attached.
func GenerateAllure(reportDir string, run *Run) error {
	allureDir := filepath.Join(reportDir, AllureDir)
	if err := os.MkdirAll(allureDir, 0o755); err != nil {
		return fmt.Errorf("create allure-results dir: %w", err)
	}

	var firstErr error
	run.WalkSpecs(func(suite *Suite, spec *Spec) {
		if firstErr != nil {
			return
		}
		result := buildAllureResult(suite, spec, run.MismatchThreshold)
		writeAllureAttachments(allureDir, result.UUID, spec)

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			firstErr = fmt.Errorf("marshal allure result for %s: %w", spec.ID, err)
			return
		}

		resultPath := filepath.Join(allureDir, result.UUID+"-result.json")
		if err := os.WriteFile(resultPath, data, 0o644); err != nil {
			firstErr = fmt.Errorf("write allure result %s: %w", spec.ID, err)
		}
	})
	if firstErr != nil {
		return firstErr
	}

	// Write categories.json
	if err := writeAllureCategories(allureDir); err != nil {
		return err
	}

	// Write environment.properties
	if err := writeAllureEnvironment(allureDir, run); err != nil {
		return err
	}

	// Write executor.json
	if err := writeAllureExecutor(allureDir); err != nil {
		return err
	}

	return nil
}

// buildAllureResult builds an AllureResult from a spec and its suite.
func buildAllureResult(suite *Suite, spec *Spec, threshold float64) AllureResult {
	uuid := fnv32aHash(suite.ID + ":" + spec.ID)

	var startMs, stopMs int64
	if spec.StartTime != nil {
		startMs = spec.StartTime.UnixMilli()
	}
	if spec.EndTime != nil {
		stopMs = spec.EndTime.UnixMilli()
	}

	labels := []AllureLabel{
		{Name: "suite", Value: suite.Description},
		{Name: "framework", Value: "visual-diff"},
		{Name: "severity", Value: "normal"},
	}
	if top := TopSuite(suite); top != nil && top != suite {
		labels = append(labels, AllureLabel{Name: "parentSuite", Value: top.Description})
	}

	var statusDetails AllureStatusDetails
	var messages []string
	for _, e := range spec.FailedExpectations {
		messages = append(messages, e.Message)
		if e.Stack != "" {
			statusDetails.Trace += e.Stack + "\n"
		}
	}
	statusDetails.Message = strings.Join(messages, "\n")
	if spec.PendingReason != "" && statusDetails.Message == "" {
		statusDetails.Message = spec.PendingReason
	}

	steps := make([]AllureStep, 0, len(spec.Screenshots))
	var attachments []AllureAttachment
	for i, shot := range spec.Screenshots {
		step := buildAllureStep(uuid, i, shot, threshold, startMs, stopMs)
		steps = append(steps, step)
		attachments = append(attachments, step.Attachments...)
	}

	name := spec.Description
	if name == "" {
		name = spec.ID
	}
	fullName := spec.FullName
	if fullName == "" {
		fullName = name
	}

	return AllureResult{
		UUID:          uuid,
		HistoryID:     fnv32aHash(fullName),
		FullName:      fullName,
		Name:          name,
		Status:        mapAllureStatus(spec.Status),
		Stage:         "finished",
		Start:         startMs,
		Stop:          stopMs,
		Labels:        labels,
		StatusDetails: statusDetails,
		Steps:         steps,
		Attachments:   attachments,
	}
}

func buildAllureStep(uuid string, index int, shot Screenshot, threshold float64, startMs, stopMs int64) AllureStep {
	name := "Screenshot " + shot.Name
	status := "passed"
	if shot.HasComparison() {
		name = fmt.Sprintf("Screenshot %s (%.2f%% mismatch)", shot.Name, shot.Mismatch())
		if shot.Mismatch() > threshold {
			status = "failed"
		}
	}

	var attachments []AllureAttachment
	for _, a := range shot.Attachments() {
		attachments = append(attachments, AllureAttachment{
			Name:   imageLabel(a.Kind),
			Source: attachmentSource(uuid, index, a.Kind),
			Type:   a.ContentType,
		})
	}

	return AllureStep{
		Name:        name,
		Status:      status,
		Stage:       "finished",
		Start:       startMs,
		Stop:        stopMs,
		Steps:       []AllureStep{},
		Attachments: attachments,
	}
}

func attachmentSource(uuid string, index int, kind core.ImageKind) string {
	return fmt.Sprintf("%s-%d-%s-attachment%s", uuid, index, kind, core.ImageExt)
}

// writeAllureAttachments writes every screenshot image into allure-results/
// under the names referenced by the result. Images come from memory when
// present, otherwise they are copied from the store.
func writeAllureAttachments(allureDir, uuid string, spec *Spec) {
	for i, shot := range spec.Screenshots {
		for _, a := range shot.Attachments() {
			dst := filepath.Join(allureDir, attachmentSource(uuid, i, a.Kind))
			if len(a.Body) > 0 {
				if err := os.WriteFile(dst, a.Body, 0o644); err != nil {
					logger.Warn("failed to write allure attachment %s: %v", dst, err)
				}
				continue
			}
			copyFile(a.Path, dst)
		}
	}
}

// copyFile copies a single file from src to dst, ignoring a missing source
// (a stored image may have been cleared by a later run).
func copyFile(src, dst string) {
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		logger.Warn("failed to copy %s to %s: %v", src, dst, err)
	}
}

// mapAllureStatus maps report Status to Allure status string.
func mapAllureStatus(s Status) string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusPending, StatusDisabled:
		return "skipped"
	default:
		return "unknown"
	}
}

// fnv32aHash returns a hex-encoded FNV-32a hash of the input string.
func fnv32aHash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// writeAllureCategories writes categories.json for failure categorization.
func writeAllureCategories(allureDir string) error {
	categories := []AllureCategory{
		{Name: "Screenshot Mismatch", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*mismatch.*|.*less than or equal.*"},
		{Name: "Missing Base Image", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*no base image.*"},
		{Name: "Invalid Image Data", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*image data.*|.*decode.*"},
		{Name: "Capture Failed", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*capture.*|.*screenshot.*failed.*"},
		{Name: "Invalid Screenshot Name", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*invalid screenshot name.*"},
		{Name: "File System Error", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*permission denied.*|.*no space.*|.*read-only.*"},
	}

	data, err := json.MarshalIndent(categories, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}

	path := filepath.Join(allureDir, "categories.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write categories.json: %w", err)
	}

	return nil
}

// writeAllureEnvironment writes environment.properties with run metadata.
func writeAllureEnvironment(allureDir string, run *Run) error {
	var b strings.Builder
	b.WriteString("framework=visual-diff\n")

	if run.Title != "" {
		b.WriteString(fmt.Sprintf("report.title=%s\n", run.Title))
	}
	if run.Mode != "" {
		b.WriteString(fmt.Sprintf("mode=%s\n", run.Mode))
	}
	b.WriteString(fmt.Sprintf("mismatchThreshold=%.2f\n", run.MismatchThreshold))
	b.WriteString(fmt.Sprintf("specs.defined=%d\n", run.TotalSpecsDefined))
	b.WriteString(fmt.Sprintf("specs.executed=%d\n", run.TotalSpecsExecuted))

	path := filepath.Join(allureDir, "environment.properties")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write environment.properties: %w", err)
	}

	return nil
}

// writeAllureExecutor writes executor.json with DeviceLab branding.
func writeAllureExecutor(allureDir string) error {
	executor := AllureExecutor{
		Name:       "DeviceLab",
		Type:       "devicelab",
		ReportURL:  "https://devicelab.dev",
		ReportName: "visual-diff by DeviceLab",
	}

	data, err := json.MarshalIndent(executor, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal executor: %w", err)
	}

	path := filepath.Join(allureDir, "executor.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write executor.json: %w", err)
	}

	return nil
}
