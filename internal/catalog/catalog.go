package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"autosched/internal/automation"
	"autosched/internal/rules"
	"autosched/internal/schedule"
)

// Catalog is a decoded and normalized declaration file.
type Catalog struct {
	Workflows []automation.Workflow
	Jobs      []automation.Job
	// Warnings lists schedule types that passed through the normalizer
	// unrecognized.
	Warnings []string
}

type document struct {
	Workflows []workflowDoc `json:"workflows"`
	Notebooks []jobDoc      `json:"notebooks"`
	DataSyncs []jobDoc      `json:"dataSyncs"`
}

type workflowDoc struct {
	ID                string                        `json:"id"`
	Name              string                        `json:"name"`
	DataModelID       string                        `json:"dataModelId"`
	TriggerType       string                        `json:"triggerType"`
	Status            string                        `json:"status"`
	Schedule          *scheduleDoc                  `json:"schedule"`
	EventSubscription *automation.EventSubscription `json:"eventSubscription"`
	Conditions        []rules.Condition             `json:"conditions"`
	Actions           []rules.Action                `json:"actions"`
}

type jobDoc struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	ScheduleType string      `json:"scheduleType"`
	Schedule     scheduleDoc `json:"schedule"`
}

type scheduleDoc struct {
	Type       string     `json:"type"`
	Frequency  string     `json:"frequency"`
	Time       string     `json:"time"` // HH:MM, sets hour and minute
	Hour       *int       `json:"hour"`
	Minute     *int       `json:"minute"`
	DayOfWeek  any        `json:"dayOfWeek"` // 0..6 or a day name
	DayOfMonth *int       `json:"dayOfMonth"`
	Interval   any        `json:"interval"` // "90m", "01:30", minutes, or {value, unit}
	Cron       string     `json:"cron"`
	Timezone   string     `json:"timezone"`
	StartAt    *time.Time `json:"startAt"`
	EndAt      *time.Time `json:"endAt"`
}

// Load reads path, choosing YAML or JSON by extension.
func Load(path string, n *schedule.Normalizer) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := "json"
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		format = "yaml"
	}
	c, err := Parse(data, format, n)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes data in the given format ("json" or "yaml").
func Parse(data []byte, format string, n *schedule.Normalizer) (*Catalog, error) {
	if n == nil {
		n = schedule.DefaultNormalizer()
	}
	var raw any
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("yaml unmarshal: %w", err)
		}
	case "json", "":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("json unmarshal: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
	if raw == nil {
		return &Catalog{}, nil
	}

	j, err := json.Marshal(camelKeys(raw))
	if err != nil {
		return nil, fmt.Errorf("re-encode: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(j))
	dec.DisallowUnknownFields()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return doc.build(n)
}

func (d document) build(n *schedule.Normalizer) (*Catalog, error) {
	c := &Catalog{}
	var errs []error
	seen := map[string]bool{}
	dup := func(ref automation.Ref) bool {
		if seen[ref.String()] {
			errs = append(errs, fmt.Errorf("duplicate %s", ref))
			return true
		}
		seen[ref.String()] = true
		return false
	}

	for i, wd := range d.Workflows {
		path := fmt.Sprintf("workflows[%d]", i)
		w, warn, err := wd.workflow(path, n)
		c.Warnings = append(c.Warnings, warn...)
		if err == nil {
			err = w.Validate()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if !dup(w.Ref()) {
			c.Workflows = append(c.Workflows, w)
		}
	}
	for _, group := range []struct {
		fam  schedule.Family
		key  string
		docs []jobDoc
	}{
		{schedule.FamilyNotebook, "notebooks", d.Notebooks},
		{schedule.FamilyDataSync, "dataSyncs", d.DataSyncs},
	} {
		for i, jd := range group.docs {
			path := fmt.Sprintf("%s[%d]", group.key, i)
			j, warn, err := jd.job(path, group.fam, n)
			c.Warnings = append(c.Warnings, warn...)
			if err == nil {
				err = j.Validate()
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			if !dup(j.Ref()) {
				c.Jobs = append(c.Jobs, j)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

func (wd workflowDoc) workflow(path string, n *schedule.Normalizer) (automation.Workflow, []string, error) {
	w := automation.Workflow{
		ID:                strings.TrimSpace(wd.ID),
		Name:              wd.Name,
		DataModelID:       strings.TrimSpace(wd.DataModelID),
		TriggerType:       triggerType(wd.TriggerType),
		Status:            status(wd.Status),
		EventSubscription: wd.EventSubscription,
		Conditions:        make([]rules.Condition, len(wd.Conditions)),
		Actions:           make([]rules.Action, len(wd.Actions)),
	}
	for i, cd := range wd.Conditions {
		cd.Operator = rules.Operator(enumWord(string(cd.Operator)))
		cd.Connector = rules.Connector(enumWord(string(cd.Connector)))
		w.Conditions[i] = cd
	}
	for i, ad := range wd.Actions {
		ad.Kind = rules.ActionKind(enumWord(string(ad.Kind)))
		w.Actions[i] = ad
	}
	if es := w.EventSubscription; es != nil && es.SourceType == "" {
		es.SourceType = automation.SourceDataSync
	}
	if wd.Schedule == nil {
		return w, nil, nil
	}
	spec, warn, err := wd.Schedule.spec(path+".schedule", "", schedule.FamilyWorkflow, n)
	if err != nil {
		return w, warn, err
	}
	w.Schedule = &spec
	return w, warn, nil
}

func (jd jobDoc) job(path string, fam schedule.Family, n *schedule.Normalizer) (automation.Job, []string, error) {
	spec, warn, err := jd.Schedule.spec(path+".schedule", jd.ScheduleType, fam, n)
	raw := jd.ScheduleType
	if raw == "" {
		raw = jd.Schedule.typeWord()
	}
	return automation.Job{
		Family:       fam,
		ID:           strings.TrimSpace(jd.ID),
		Name:         jd.Name,
		ScheduleType: raw,
		Schedule:     spec,
	}, warn, err
}

func (sd scheduleDoc) typeWord() string {
	if sd.Type != "" {
		return sd.Type
	}
	return sd.Frequency
}

func (sd scheduleDoc) spec(path, fallback string, fam schedule.Family, n *schedule.Normalizer) (schedule.Spec, []string, error) {
	var warn []string
	var errs []error
	bad := func(field string, err error) { errs = append(errs, fmt.Errorf("%s.%s: %w", path, field, err)) }

	raw := sd.typeWord()
	if raw == "" {
		raw = fallback
	}
	if strings.TrimSpace(raw) == "" {
		return schedule.Spec{}, nil, fmt.Errorf("%s: schedule type required", path)
	}
	freq, ok := n.Normalize(raw, fam)
	if !ok {
		warn = append(warn, fmt.Sprintf("%s: unrecognized %s schedule type %q kept as-is", path, fam, raw))
	}

	spec := schedule.Spec{
		Frequency: freq,
		Timezone:  strings.TrimSpace(sd.Timezone),
		StartAt:   sd.StartAt,
		EndAt:     sd.EndAt,
		Params: schedule.Params{
			Hour:       sd.Hour,
			Minute:     sd.Minute,
			DayOfMonth: sd.DayOfMonth,
			Cron:       strings.TrimSpace(sd.Cron),
		},
	}
	if sd.Time != "" {
		h, m, err := schedule.ParseClock(sd.Time)
		if err != nil {
			bad("time", err)
		} else {
			spec.Params.Hour, spec.Params.Minute = schedule.Int(h), schedule.Int(m)
		}
	}
	if sd.DayOfWeek != nil {
		d, err := weekday(sd.DayOfWeek)
		if err != nil {
			bad("dayOfWeek", err)
		} else {
			spec.Params.DayOfWeek = schedule.Int(d)
		}
	}
	if sd.Interval != nil {
		e, err := interval(sd.Interval)
		if err != nil {
			bad("interval", err)
		} else {
			spec.Params.Interval = &e
		}
	}
	if spec.Frequency == schedule.Cron && spec.Params.Cron == "" {
		bad("cron", errors.New("cron expression required"))
	}
	if sd.StartAt != nil && sd.EndAt != nil && sd.EndAt.Before(*sd.StartAt) {
		bad("endAt", errors.New("must not be before startAt"))
	}
	return spec, warn, errors.Join(errs...)
}

func weekday(v any) (int, error) {
	switch x := v.(type) {
	case float64:
		if x != float64(int(x)) {
			return 0, fmt.Errorf("%w: day of week %v", schedule.ErrInvalidFrequencyParams, x)
		}
		return schedule.ParseWeekday(fmt.Sprint(int(x)))
	case string:
		return schedule.ParseWeekday(x)
	}
	return 0, fmt.Errorf("unsupported day of week %v", v)
}

func interval(v any) (schedule.Every, error) {
	switch x := v.(type) {
	case string:
		return schedule.ParseEvery(x)
	case float64:
		if x < 1 || x != float64(int(x)) {
			return schedule.Every{}, fmt.Errorf("%w: interval %v must be whole minutes", schedule.ErrInvalidFrequencyParams, x)
		}
		return schedule.Every{Value: int(x), Unit: schedule.Minutes}, nil
	case map[string]any:
		val, _ := x["value"].(float64)
		unit, _ := x["unit"].(string)
		e := schedule.Every{Value: int(val), Unit: schedule.Unit(strings.ToLower(strings.TrimSpace(unit)))}
		switch e.Unit {
		case "", schedule.Minutes, schedule.Hours:
		case "minute", "min", "m":
			e.Unit = schedule.Minutes
		case "hour", "h":
			e.Unit = schedule.Hours
		default:
			return schedule.Every{}, fmt.Errorf("%w: interval unit %q", schedule.ErrInvalidFrequencyParams, unit)
		}
		if e.Value < 1 || val != float64(e.Value) {
			return schedule.Every{}, fmt.Errorf("%w: interval value %v", schedule.ErrInvalidFrequencyParams, x["value"])
		}
		return e, nil
	}
	return schedule.Every{}, fmt.Errorf("unsupported interval %v", v)
}

func enumWord(s string) string {
	s = strings.TrimSpace(s)
	return strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(s))
}

func triggerType(s string) automation.TriggerType {
	switch w := enumWord(s); w {
	case "EVENT", "EVENTBASED":
		return automation.TriggerEvent
	case "SCHEDULE":
		return automation.TriggerScheduled
	default:
		return automation.TriggerType(w)
	}
}

func status(s string) schedule.Status {
	if strings.TrimSpace(s) == "" {
		return schedule.StatusActive
	}
	return schedule.Status(enumWord(s))
}
