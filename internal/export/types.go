package export

// Wire types of the Project AST artifact. Every type carries both json and
// yaml tags so the artifact can be written in either format.

// ProjectAST is the combined artifact of one extraction.
type ProjectAST struct {
	Type                   string                `json:"type" yaml:"type"`
	Files                  []FileAST             `json:"files" yaml:"files"`
	Metadata               Metadata              `json:"metadata" yaml:"metadata"`
	Dependencies           []Dependency          `json:"dependencies" yaml:"dependencies"`
	PackageDefinitions     map[string]PackageDef `json:"package_definitions" yaml:"package_definitions"`
	GlobalFunctionRegistry []RegistryEntry       `json:"global_function_registry" yaml:"global_function_registry"`
	RegistryConflicts      []Conflict            `json:"registry_conflicts" yaml:"registry_conflicts"`
	CrossFileCalls         []Call                `json:"cross_file_calls" yaml:"cross_file_calls"`
}

// Metadata describes the extraction run.
type Metadata struct {
	TotalFiles int    `json:"total_files" yaml:"total_files"`
	CreatedAt  string `json:"created_at" yaml:"created_at"`
	Generator  string `json:"generator,omitempty" yaml:"generator,omitempty"`
}

// FileAST is the structural tree of one source file. Imports of the global
// scope are listed at file level.
type FileAST struct {
	Type          string         `json:"type" yaml:"type"`
	SourceFile    string         `json:"source_file" yaml:"source_file"`
	Hash          string         `json:"hash,omitempty" yaml:"hash,omitempty"`
	LineCount     int            `json:"line_count" yaml:"line_count"`
	UseStatements []UseStatement `json:"use_statements" yaml:"use_statements"`
	Packages      []Package      `json:"packages" yaml:"packages"`
	GlobalScope   *GlobalScope   `json:"global_scope" yaml:"global_scope"`
	Warnings      []Warning      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type UseStatement struct {
	Type       string `json:"type" yaml:"type"`
	Keyword    string `json:"keyword" yaml:"keyword"`
	Module     string `json:"module" yaml:"module"`
	SourceFile string `json:"source_file" yaml:"source_file"`
	Line       int    `json:"line" yaml:"line"`
}

type Package struct {
	Type            string           `json:"type" yaml:"type"`
	Name            string           `json:"name" yaml:"name"`
	Line            int              `json:"line" yaml:"line"`
	UseStatements   []UseStatement   `json:"use_statements" yaml:"use_statements"`
	Methods         []Method         `json:"methods" yaml:"methods"`
	ScriptExecution *ScriptExecution `json:"script_execution" yaml:"script_execution"`
	SourceFile      string           `json:"source_file" yaml:"source_file"`
}

type Method struct {
	Type       string   `json:"type" yaml:"type"`
	Name       string   `json:"name" yaml:"name"`
	FullName   string   `json:"full_name" yaml:"full_name"`
	Package    string   `json:"package,omitempty" yaml:"package,omitempty"`
	Parameters []string `json:"parameters" yaml:"parameters"`
	Body       string   `json:"body" yaml:"body"`
	SourceFile string   `json:"source_file" yaml:"source_file"`
	StartLine  int      `json:"start_line" yaml:"start_line"`
	EndLine    int      `json:"end_line" yaml:"end_line"`
	Balanced   bool     `json:"balanced" yaml:"balanced"`
}

type ScriptExecution struct {
	Type       string `json:"type" yaml:"type"`
	Body       string `json:"body" yaml:"body"`
	SourceFile string `json:"source_file" yaml:"source_file"`
	StartLine  int    `json:"start_line" yaml:"start_line"`
}

// GlobalScope holds the definitions and residual code outside any package.
type GlobalScope struct {
	Type       string   `json:"type" yaml:"type"`
	Body       string   `json:"body" yaml:"body"`
	StartLine  int      `json:"start_line,omitempty" yaml:"start_line,omitempty"`
	SourceFile string   `json:"source_file" yaml:"source_file"`
	Functions  []Method `json:"functions,omitempty" yaml:"functions,omitempty"`
}

type Warning struct {
	Kind    string `json:"kind" yaml:"kind"`
	File    string `json:"file" yaml:"file"`
	Line    int    `json:"line" yaml:"line"`
	Message string `json:"message" yaml:"message"`
}

type Dependency struct {
	Source  string   `json:"source_file" yaml:"source_file"`
	Target  string   `json:"target_file" yaml:"target_file"`
	Modules []string `json:"modules" yaml:"modules"`
}

// PackageDef locates a package and lists its definition names.
type PackageDef struct {
	File    string   `json:"file" yaml:"file"`
	Methods []string `json:"methods" yaml:"methods"`
}

// RegistryEntry is one entry of the global function registry, listed in
// registry order.
type RegistryEntry struct {
	FullName string `json:"full_name" yaml:"full_name"`
	File     string `json:"file" yaml:"file"`
	Package  string `json:"package,omitempty" yaml:"package,omitempty"`
	Name     string `json:"name" yaml:"name"`
}

type Conflict struct {
	FullName string `json:"full_name" yaml:"full_name"`
	Previous string `json:"previous_file" yaml:"previous_file"`
	Winner   string `json:"winner_file" yaml:"winner_file"`
}

// Call is a resolved cross-file call.
type Call struct {
	CallerFile     string `json:"caller_file" yaml:"caller_file"`
	CallerPackage  string `json:"caller_package,omitempty" yaml:"caller_package,omitempty"`
	CallerMethod   string `json:"caller_method,omitempty" yaml:"caller_method,omitempty"`
	TargetFile     string `json:"target_file" yaml:"target_file"`
	TargetPackage  string `json:"target_package,omitempty" yaml:"target_package,omitempty"`
	TargetMethod   string `json:"target_method" yaml:"target_method"`
	TargetFullName string `json:"target_full_name" yaml:"target_full_name"`
	CallPattern    string `json:"call_pattern" yaml:"call_pattern"`
	CallType       string `json:"call_type" yaml:"call_type"`
}
