package parser

import "github.com/insightdelivered/medical-billing-extractor/internal/models"

// Words that, inside a patient name, betray report furniture.
var defaultNoiseTerms = []string{
	"PROENÇA ANTUNES", "CPANTUNES", "UTILIZADOR", "PÁGINA", "LISTAGEM",
	"RELATÓRIO", "FIM DA LISTAGEM", "GHCE",
}

// Operator and footer text that drops a whole line.
var defaultHeaderTerms = []string{"CPANTUNES", "FIM DA LISTAGEM"}

// Reversed fragments of "CARLOS", the operator name printed on every page.
var defaultInversionMarkers = []string{"SOLRAC", "OLRAC", "SOLRA"}

// Services and specialties, matched longest first.
var defaultSpecialties = []string{
	"Bloco Operatorio Tejo",
	"Cir. Plástica E Reconstru",
	"Ginecologia Obstetricia",
	"Otorrinolaringologia",
	"Neuro-Cirurgia",
	"Cirurgia Vascular",
	"Cirurgia Torácica",
	"Cirurgia Plástica",
	"Cirurgia Geral",
	"Gastroenterologia",
	"Anestesiologia",
	"Oftalmologia",
	"Dermatologia",
	"Ginecologia",
	"Cardiologia",
	"Pneumologia",
	"Ortopedia",
	"Angiografia",
	"Urologia",
	"CPRE",
}

var defaultFeeGroups = []string{
	"Anestesia", "Angiografias", "CPRE", "Cirurgias Oftalmologia",
	"Cirurgias", "Consultas", "Exames Bloco",
}

// DefaultProfile returns the built-in vocabulary for a report type.
func DefaultProfile(report models.ReportType) models.Profile {
	p := models.Profile{
		NoiseTerms:       defaultNoiseTerms,
		HeaderTerms:      defaultHeaderTerms,
		InversionMarkers: defaultInversionMarkers,
	}
	switch report {
	case models.ReportFees:
		p.Specialties = defaultSpecialties
		p.Groups = defaultFeeGroups
		p.SkipPages = []int{1}
		p.Engine = models.EngineRegex
	case models.ReportAnesthesia:
		p.Specialties = defaultSpecialties
		p.Engine = models.EngineRegex
	case models.ReportConsultations:
		p.NameWindow = models.XWindow{Min: 150, Max: 400}
		p.StopLabelMaxX = 35
		p.RowGap = 5
		p.JunkFragments = []string{"Anestesiologi", "Consultas", "Consulta De"}
		p.Engine = models.EngineLayout
	case models.ReportSpecialExams:
		p.NoiseTerms = []string{"PROENÇA", "CPANTUNES", "PÁGINA", "UTILIZADOR", "GHCE9050"}
		p.Engine = models.EngineOracle
	}
	return p
}
