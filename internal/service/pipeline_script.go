package service

type Step struct {
	Name              string `yaml:"name"`
	Script            string `yaml:"script"`
	TimeoutSeconds    int64  `yaml:"timeout_seconds"`
	ContinueOnFailure bool   `yaml:"continue_on_failure"`
}

type PipelineScript struct {
	Steps []Step `yaml:"steps"`
}
