package export

import (
	"fmt"
	"time"

	"github.com/BubbatheVTOG/b404.be-sub000/internal/steptree"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/store"
)

// Request carries everything needed to render one workflow report. The
// caller resolves the workflow, company, and step forest first so this
// package stays a pure renderer.
type Request struct {
	Workflow    store.Workflow
	CompanyName string
	VerbNames   map[string]string
	Forest      []*steptree.Step
	Format      Format
}

type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Export renders the workflow status report in the requested format.
func (s *Service) Export(req Request) (*Result, error) {
	data := TemplateData{
		Name:            req.Workflow.Name,
		Description:     req.Workflow.Description,
		CompanyName:     req.CompanyName,
		PercentComplete: steptree.PercentComplete(req.Forest),
		Archived:        req.Workflow.Archived,
		StartDate:       req.Workflow.StartDate,
		DeliveryDate:    req.Workflow.DeliveryDate,
		CompletedDate:   req.Workflow.CompletedDate,
		GeneratedAt:     time.Now(),
		Steps:           templateSteps(req.Forest, req.VerbNames),
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, req.Workflow.Name)
	case FormatDOCX:
		return exportDOCX(html, req.Workflow.Name)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func templateSteps(forest []*steptree.Step, verbNames map[string]string) []TemplateStep {
	steps := make([]TemplateStep, 0, len(forest))
	for _, node := range forest {
		verb := verbNames[node.VerbID]
		if verb == "" {
			verb = node.VerbID
		}
		steps = append(steps, TemplateStep{
			Verb:         verb,
			Description:  node.Description,
			Completed:    node.Completed,
			Asynchronous: node.Asynchronous,
			Children:     templateSteps(node.Children, verbNames),
		})
	}
	return steps
}
