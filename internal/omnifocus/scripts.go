package omnifocus

import (
	"embed"
	"encoding/json"
	"fmt"
)

// Script names one embedded JXA script.
type Script string

const (
	ScriptPing              Script = "ping"
	ScriptListTasks         Script = "list_tasks"
	ScriptTodaysAgenda      Script = "todays_agenda"
	ScriptListProjects      Script = "list_projects"
	ScriptListTags          Script = "list_tags"
	ScriptProductivityStats Script = "productivity_stats"
	ScriptCreateTask        Script = "create_task"
	ScriptUpdateTask        Script = "update_task"
	ScriptCompleteTask      Script = "complete_task"
	ScriptDeleteTask        Script = "delete_task"
	ScriptCreateProject     Script = "create_project"
	ScriptUpdateProject     Script = "update_project"
	ScriptCompleteProject   Script = "complete_project"
	ScriptDeleteProject     Script = "delete_project"
	ScriptManageTags        Script = "manage_tags"
)

//go:embed scripts/*.js
var scripts embed.FS

// Source returns the body of a script.
func Source(s Script) (string, error) {
	b, err := scripts.ReadFile("scripts/" + string(s) + ".js")
	if err != nil {
		return "", fmt.Errorf("omnifocus: unknown script %q", s)
	}
	return string(b), nil
}

// Build prefixes the script with its parameters, exposed to it as `params`.
func Build(s Script, params map[string]any) (string, error) {
	body, err := Source(s)
	if err != nil {
		return "", err
	}
	if params == nil {
		params = map[string]any{}
	}
	p, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("omnifocus: encode params for %s: %w", s, err)
	}
	return "const params = " + string(p) + ";\n" + body, nil
}
