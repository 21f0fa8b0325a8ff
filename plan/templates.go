package plan

// ClassifyTemplate asks the small model tier to classify a goal. It receives
// the State values plus goal.
const ClassifyTemplate = `Classify the following request before planning how to handle it.

Request: {{.goal}}
{{if .providers}}
# Context
{{.providers}}
{{end}}
Respond using this format:
<classification>
<complexity>simple|moderate|complex</complexity>
<planning_type>direct|sequential|strategic</planning_type>
<execution_model>sequential|parallel|dag</execution_model>
<capabilities>comma separated capabilities the request needs</capabilities>
<confidence>0.0-1.0</confidence>
</classification>`

// PlanTemplate asks the large model tier for a plan. It receives the State
// values plus goal, constraints, capabilities and classification.
const PlanTemplate = `Create an execution plan for the goal below.

Goal: {{.goal}}
{{if .constraints}}
# Constraints
{{bullets .constraints}}
{{end}}{{if .capabilities}}
# Available capabilities
{{bullets .capabilities}}
{{end}}{{if .classification}}
The goal was classified as {{.classification}}.
{{end}}{{if .providers}}
# Context
{{.providers}}
{{end}}
Use only the available capabilities. Give every step a unique id. A step
may depend on earlier steps by id.

Respond using this format:
<plan>
<execution_model>sequential|parallel|dag</execution_model>
<steps>[{"id": "step-1", "description": "...", "capability": "...", "dependsOn": [], "params": {}}]</steps>
</plan>`
