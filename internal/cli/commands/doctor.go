package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapdoc/internal/cli/config"
	"github.com/leapstack-labs/leapdoc/internal/cli/output"
	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/genai"
	"github.com/leapstack-labs/leapdoc/internal/mapping"
	"github.com/leapstack-labs/leapdoc/internal/validation"
	"github.com/leapstack-labs/leapdoc/pkg/core"
	"github.com/spf13/cobra"
)

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	Format string // Output format: text, json
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the project setup before generating documents",
		Long: `Check the dataset, template, mapping, validation rules and service
credential of the current project and report problems before any
document is generated.

The report includes:
- Project summary (rows, columns, template fields)
- Health checks grouped by category (Data, Template, Validation, Service)
- Health score (0-100)
- Actionable recommendations

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run health check
  leapdoc doctor

  # Output as JSON
  leapdoc doctor --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, json")

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Summary         ProjectSummary `json:"summary"`
	HealthChecks    []HealthCheck  `json:"health_checks"`
	Score           int            `json:"score"`
	Recommendations []string       `json:"recommendations"`
	IssueCount      int            `json:"issue_count"`
}

// ProjectSummary contains project-level statistics.
type ProjectSummary struct {
	Rows      int    `json:"rows"`
	Columns   int    `json:"columns"`
	Fields    int    `json:"fields"`
	Layout    string `json:"layout"`
	Rules     int    `json:"rules"`
	History   bool   `json:"history"`
	Generator bool   `json:"generator"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	RuleID     string   `json:"rule_id"`
	Name       string   `json:"name"`
	Group      string   `json:"group"`
	Status     string   `json:"status"` // "pass", "warn", "error"
	IssueCount int      `json:"issue_count"`
	Details    []string `json:"details,omitempty"`
}

// doctorInput is what the checks inspect. Nil fields were not loadable.
type doctorInput struct {
	cfg        *config.Config
	ds         *dataset.Dataset
	dataErr    error
	fields     []string
	mapping    *mapping.Mapping
	tmplErr    error
	policy     mapping.Policy
	rulesErr   error
	credential bool
	credErr    error
	history    bool
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions) error {
	cc := NewCommandContextWithoutEngine(cmd)
	r := cc.Renderer

	// Override renderer if format flag is set
	if opts.Format != "" {
		r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(opts.Format))
	}

	in := gatherDoctorInput(cmd.Context(), cc)
	out := buildDoctorOutput(in)

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeMarkdown:
		return renderDoctorMarkdown(r, out)
	default:
		return renderDoctorText(r, out)
	}
}

// gatherDoctorInput loads every configured source, recording failures
// instead of stopping at the first one.
func gatherDoctorInput(ctx context.Context, cc *CommandContext) *doctorInput {
	cfg, logger := cc.Cfg, cc.Logger
	in := &doctorInput{cfg: cfg}

	store, err := openStore(cfg, logger)
	if err == nil && store != nil {
		in.history = true
		_ = store.Close()
	}

	holder := newCredential(cfg, logger)
	in.credential = holder.Available(ctx)
	in.credErr = holder.LastError()

	defer func() { in.rulesErr = compileRules(cfg.Validation.Rules, in.ds) }()

	if in.policy, err = mapping.ParsePolicy(cfg.Mapping.Policy); err != nil {
		in.policy = mapping.PolicyStrict
	}

	if err := cfg.ValidateData(); err != nil {
		in.dataErr = err
		return in
	}
	eng, err := createEngine(cfg, logger, holder, nil)
	if err != nil {
		in.dataErr = err
		return in
	}
	if in.ds, err = eng.LoadFile(cfg.Data, datasetOptions(cfg)); err != nil {
		in.dataErr = err
		return in
	}

	if cfg.EffectiveLayout() != config.LayoutTemplate {
		return in
	}
	c, err := openTemplate(cfg.Template)
	if err != nil {
		in.tmplErr = err
		return in
	}
	if in.mapping, err = eng.UseTemplate(ctx, c); err != nil {
		in.tmplErr = err
		return in
	}
	if cfg.MappingFile != "" {
		m, err := mapping.Load(cfg.MappingFile)
		if err != nil {
			in.tmplErr = err
			return in
		}
		if err := eng.UseMapping(m); err != nil {
			in.tmplErr = err
			return in
		}
		in.mapping = eng.Mapping()
	}
	in.fields = eng.Fields()
	return in
}

// compileRules checks rule expressions. Unknown fields are reported by
// checkRuleColumns, so every rule field counts as a column here.
func compileRules(rules []validation.Rule, ds *dataset.Dataset) error {
	var columns []string
	if ds != nil {
		columns = ds.Columns()
	}
	for _, r := range rules {
		columns = append(columns, r.Field)
	}
	_, err := validation.NewRuleValidator(rules, columns)
	return err
}

// doctorCheck describes one health rule.
type doctorCheck struct {
	ID       string
	Name     string
	Group    string
	Severity string
	Run      func(*doctorInput) []string
}

var doctorChecks = []doctorCheck{
	{ID: "DS01", Name: "dataset-loads", Group: "data", Severity: "error", Run: checkDatasetLoads},
	{ID: "DS02", Name: "empty-cells", Group: "data", Severity: "warn", Run: checkEmptyCells},
	{ID: "DS03", Name: "name-column", Group: "data", Severity: "warn", Run: checkNameColumn},
	{ID: "TP01", Name: "template-opens", Group: "template", Severity: "error", Run: checkTemplateOpens},
	{ID: "TP02", Name: "mapping-complete", Group: "template", Severity: "error", Run: checkMappingComplete},
	{ID: "TP03", Name: "unused-columns", Group: "template", Severity: "warn", Run: checkUnusedColumns},
	{ID: "VL01", Name: "rules-compile", Group: "validation", Severity: "error", Run: checkRulesCompile},
	{ID: "VL02", Name: "rules-columns", Group: "validation", Severity: "warn", Run: checkRuleColumns},
	{ID: "SV01", Name: "credential", Group: "service", Severity: "warn", Run: checkCredential},
	{ID: "SV02", Name: "run-history", Group: "service", Severity: "warn", Run: checkHistory},
}

func checkDatasetLoads(in *doctorInput) []string {
	if in.dataErr != nil {
		return []string{in.dataErr.Error()}
	}
	return nil
}

func checkEmptyCells(in *doctorInput) []string {
	if in.ds == nil {
		return nil
	}
	var details []string
	for _, col := range in.ds.Columns() {
		empty := 0
		for _, row := range in.ds.Rows() {
			if strings.TrimSpace(row.Get(col)) == "" {
				empty++
			}
		}
		if empty > 0 {
			details = append(details, fmt.Sprintf("column %q is empty in %d row(s)", col, empty))
		}
	}
	return details
}

func checkNameColumn(in *doctorInput) []string {
	col := in.cfg.NameColumn
	if in.ds == nil || col == "" {
		return nil
	}
	if !in.ds.HasColumn(col) {
		return []string{fmt.Sprintf("name_column %q matches no column", col)}
	}
	seen := make(map[string]int)
	var details []string
	for _, row := range in.ds.Rows() {
		v := strings.TrimSpace(row.Get(col))
		if first, dup := seen[v]; dup && v != "" {
			details = append(details, fmt.Sprintf("rows %d and %d share the name %q", first+1, row.Index+1, v))
			continue
		}
		seen[v] = row.Index
	}
	return details
}

func checkTemplateOpens(in *doctorInput) []string {
	if in.tmplErr != nil {
		return []string{in.tmplErr.Error()}
	}
	return nil
}

func checkMappingComplete(in *doctorInput) []string {
	if in.mapping == nil {
		return nil
	}
	var details []string
	for _, f := range in.mapping.Unmapped() {
		details = append(details, fmt.Sprintf("field %q has no column", f))
	}
	return details
}

func checkUnusedColumns(in *doctorInput) []string {
	if in.mapping == nil || in.ds == nil {
		return nil
	}
	var details []string
	for _, col := range in.ds.Columns() {
		if len(in.mapping.FieldsForColumn(col)) == 0 {
			details = append(details, fmt.Sprintf("column %q is not used by the template", col))
		}
	}
	return details
}

func checkRulesCompile(in *doctorInput) []string {
	if in.rulesErr != nil {
		return []string{in.rulesErr.Error()}
	}
	return nil
}

func checkRuleColumns(in *doctorInput) []string {
	if in.ds == nil {
		return nil
	}
	var details []string
	for _, rule := range in.cfg.Validation.Rules {
		if rule.Field != "" && !in.ds.HasColumn(rule.Field) {
			details = append(details, fmt.Sprintf("rule for %q matches no column", rule.Field))
		}
	}
	return details
}

func checkCredential(in *doctorInput) []string {
	if in.credential {
		return nil
	}
	if in.credErr != nil {
		return []string{genai.UserMessage(in.credErr)}
	}
	return []string{genai.UserMessage(core.ErrNoCredential)}
}

func checkHistory(in *doctorInput) []string {
	if in.history {
		return nil
	}
	if in.cfg.StatePath == "" {
		return []string{"state_path is empty"}
	}
	return []string{fmt.Sprintf("could not open %s", in.cfg.StatePath)}
}

func buildDoctorOutput(in *doctorInput) *DoctorOutput {
	summary := ProjectSummary{
		Layout:    in.cfg.EffectiveLayout(),
		Fields:    len(in.fields),
		Rules:     len(in.cfg.Validation.Rules),
		History:   in.history,
		Generator: in.credential,
	}
	if in.ds != nil {
		summary.Rows = in.ds.Len()
		summary.Columns = len(in.ds.Columns())
	}

	issueCount := 0
	healthChecks := make([]HealthCheck, 0, len(doctorChecks))
	for _, c := range doctorChecks {
		details := c.Run(in)
		status := "pass"
		if len(details) > 0 {
			status = c.Severity
			if c.ID == "TP02" && in.policy != mapping.PolicyStrict {
				status = "warn"
			}
		}
		issueCount += len(details)
		healthChecks = append(healthChecks, HealthCheck{
			RuleID:     c.ID,
			Name:       c.Name,
			Group:      c.Group,
			Status:     status,
			IssueCount: len(details),
			Details:    details,
		})
	}

	// Sort health checks by group then by rule ID
	sort.SliceStable(healthChecks, func(i, j int) bool {
		if healthChecks[i].Group != healthChecks[j].Group {
			return healthChecks[i].Group < healthChecks[j].Group
		}
		return healthChecks[i].RuleID < healthChecks[j].RuleID
	})

	return &DoctorOutput{
		Summary:         summary,
		HealthChecks:    healthChecks,
		Score:           calculateHealthScore(healthChecks, summary.Rows),
		Recommendations: generateRecommendations(healthChecks),
		IssueCount:      issueCount,
	}
}

// calculateHealthScore computes a health score from 0-100.
// With more rows, each individual data issue has less impact.
func calculateHealthScore(checks []HealthCheck, rowCount int) int {
	if len(checks) == 0 {
		return 100
	}

	score := 100.0

	basePenalty := 5.0
	if rowCount > 10 {
		basePenalty = 3.0
	}
	if rowCount > 50 {
		basePenalty = 2.0
	}
	if rowCount > 100 {
		basePenalty = 1.0
	}

	for _, check := range checks {
		switch check.Status {
		case "error":
			score -= float64(check.IssueCount) * basePenalty * 2 // Errors count double
		case "warn":
			score -= float64(check.IssueCount) * basePenalty
		}
	}

	// Clamp to 0-100
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return int(score)
}

// generateRecommendations creates actionable recommendations based on findings.
func generateRecommendations(checks []HealthCheck) []string {
	var recommendations []string
	seen := make(map[string]bool)

	for _, check := range checks {
		if check.IssueCount == 0 {
			continue
		}

		rec := getRecommendation(check.RuleID)
		if rec != "" && !seen[rec] {
			recommendations = append(recommendations, rec)
			seen[rec] = true
		}
	}

	// Limit to top 5 recommendations
	if len(recommendations) > 5 {
		recommendations = recommendations[:5]
	}

	return recommendations
}

// getRecommendation returns a recommendation for a specific rule.
func getRecommendation(ruleID string) string {
	switch ruleID {
	case "DS01":
		return "Point data at a readable CSV or XLSX file with a header and at least one row"
	case "DS02":
		return "Fill or remove empty cells, or add validation rules that flag them"
	case "DS03":
		return "Choose a name_column with unique values so exported files do not collide"
	case "TP01":
		return "Check that the template is a valid HTML or DOCX file"
	case "TP02":
		return "Run 'leapdoc map' and map every template field to a column"
	case "TP03":
		return "Add placeholders for unused columns or remove them from the dataset"
	case "VL01":
		return "Fix the validation rule expressions in leapdoc.yaml"
	case "VL02":
		return "Rename validation rule fields to match dataset columns"
	case "SV01":
		return "Set GEMINI_API_KEY or generation.api_key to enable generated layouts"
	case "SV02":
		return "Set state_path to a writable location to keep run history"
	default:
		return ""
	}
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) error {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header.Render("LeapDoc Project Health Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Println("")

	r.Println(styles.Bold.Render("Project Summary"))
	r.Printf("   Rows: %d | Columns: %d | Template fields: %d\n", out.Summary.Rows, out.Summary.Columns, out.Summary.Fields)
	r.Printf("   Layout: %s | Rules: %d\n", out.Summary.Layout, out.Summary.Rules)
	r.Println("")

	r.Println(styles.Bold.Render("Health Checks"))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}

		icon := styles.Success.Render("✓")
		switch check.Status {
		case "warn":
			icon = styles.Warning.Render("!")
		case "error":
			icon = styles.Error.Render("✗")
		}

		status := fmt.Sprintf("%s %s: %s", icon, check.RuleID, check.Name)
		if check.IssueCount > 0 {
			status += fmt.Sprintf(" (%d issues)", check.IssueCount)
		}
		r.Println("   " + status)

		// Show first 3 details for issues
		for i, detail := range check.Details {
			if i >= 3 {
				r.Println(styles.Muted.Render(fmt.Sprintf("       ... and %d more", len(check.Details)-3)))
				break
			}
			r.Println(styles.Muted.Render("       - " + detail))
		}
	}
	r.Println("")

	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Health Score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println(styles.Bold.Render("Recommendations"))
		for i, rec := range out.Recommendations {
			r.Printf("   %d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) error {
	r.Println("# LeapDoc Project Health Report")
	r.Println("")

	r.Println("## Project Summary")
	r.Println("")
	r.Printf("- **Rows**: %d\n", out.Summary.Rows)
	r.Printf("- **Columns**: %d\n", out.Summary.Columns)
	r.Printf("- **Template fields**: %d\n", out.Summary.Fields)
	r.Printf("- **Layout**: %s\n", out.Summary.Layout)
	r.Printf("- **Validation rules**: %d\n", out.Summary.Rules)
	r.Println("")

	r.Println("## Health Checks")
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("### " + titleCaser.String(currentGroup))
			r.Println("")
		}

		status := "PASS"
		switch check.Status {
		case "warn":
			status = "WARN"
		case "error":
			status = "ERROR"
		}

		r.Printf("- **[%s]** %s: %s", status, check.RuleID, check.Name)
		if check.IssueCount > 0 {
			r.Printf(" (%d issues)", check.IssueCount)
		}
		r.Println("")

		for _, detail := range check.Details {
			r.Printf("  - %s\n", detail)
		}
	}
	r.Println("")

	r.Println("## Health Score")
	r.Println("")
	r.Printf("**%d/100**\n", out.Score)
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println("## Recommendations")
		r.Println("")
		for i, rec := range out.Recommendations {
			r.Printf("%d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}
