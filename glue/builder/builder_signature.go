package builder

import (
	"fmt"
	"strings"
)

// typeName maps a parameter type onto the preamble typedefs where possible
func (kb *Builder) typeName(p *ParamSpec) string {
	dt := p.DataType
	switch {
	case dt == 0 && p.Direction == DirectionScalar:
		return "int_t"
	case dt == 0, dt == kb.FloatType:
		return "real_t"
	case dt == kb.IntType:
		return "int_t"
	default:
		return dt.CType()
	}
}

// GenerateKernelSignature generates the parameter list for a kernel function.
// Parameters keep the order given, which is the order Enqueue expects.
func (kb *Builder) GenerateKernelSignature(params ...*ParamBuilder) (string, error) {
	seen := make(map[string]bool, len(params))
	out := make([]string, 0, len(params))
	for _, pb := range params {
		p := &pb.Spec
		if err := p.Validate(); err != nil {
			return "", err
		}
		if seen[p.Name] {
			return "", fmt.Errorf("duplicate parameter %s", p.Name)
		}
		seen[p.Name] = true

		if p.Direction == DirectionScalar {
			out = append(out, fmt.Sprintf("const %s %s", kb.typeName(p), p.Name))
			continue
		}
		constQualifier := ""
		if p.IsConst() {
			constQualifier = "const "
		}
		out = append(out, fmt.Sprintf("%s%s* %s", constQualifier, kb.typeName(p), p.Name))
	}
	return strings.Join(out, ",\n\t"), nil
}

// GenerateKernelDeclaration generates a complete kernel function declaration
func (kb *Builder) GenerateKernelDeclaration(kernelName string, params ...*ParamBuilder) (string, error) {
	sig, err := kb.GenerateKernelSignature(params...)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("@kernel void %s(\n\t%s\n)", kernelName, sig), nil
}

// GenerateKernelTemplate wraps body in the partition loops. Inside body,
// part is the @outer partition, i the @inner lane and idx the global index;
// lanes past K of a short final partition are masked out by the caller
// through idx.
func (kb *Builder) GenerateKernelTemplate(kernelName, body string, params ...*ParamBuilder) (string, error) {
	decl, err := kb.GenerateKernelDeclaration(kernelName, params...)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(decl)
	sb.WriteString(" {\n")
	sb.WriteString("\tfor (int part = 0; part < NPART; ++part; @outer) {\n")
	sb.WriteString("\t\tfor (int i = 0; i < KpartMax; ++i; @inner) {\n")
	sb.WriteString("\t\t\tconst int_t idx = (int_t)part * KpartMax + i;\n")

	if body != "" {
		for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
			if strings.TrimSpace(line) == "" {
				sb.WriteString("\n")
				continue
			}
			sb.WriteString("\t\t\t" + line + "\n")
		}
	}

	sb.WriteString("\t\t}\n")
	sb.WriteString("\t}\n")
	sb.WriteString("}\n")

	return sb.String(), nil
}
