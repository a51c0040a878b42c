package oracle

import "github.com/insightdelivered/medical-billing-extractor/internal/models"

const feesPrompt = `Extrai os dados desta listagem de honorários para este JSON:
[{"data":"DD-MM-YYYY","id":"ID","nome":"NOME","valor":0.00,"procedimento":"PROC","entidade":"ENTIDADE"}]`

const anesthesiaPrompt = `Analisa o texto médico.
REGRAS:
1. DATA: Formato DD-MM-YYYY.
2. NOME: Nome completo MAIÚSCULAS.
3. PROCESSO: Apenas números.
4. PROCEDIMENTO: Apenas a primeira linha do ato principal.
JSON: [{"data": "DD-MM-YYYY", "processo": "123", "nome": "NOME", "procedimento": "PROC"}]`

const consultationsPrompt = `Atua como um extrator de listagens de CONSULTAS médicas.
Extrai apenas linhas que contenham DATA, PROCESSO e NOME do doente.
Responde rigorosamente em JSON:
[{"data": "DD-MM-YYYY", "processo": "123", "nome": "NOME COMPLETO"}]`

const specialExamsPrompt = `Extrai os exames especiais desta listagem.
Cada linha tem data, processo HCIS, nome do doente e exame.
Responde apenas com JSON:
[{"data": "DD-MM-YYYY", "hcis": "123", "nome": "NOME", "procedimento": "EXAME"}]`

// TotalPrompt asks for the record count a report declares about itself.
const TotalPrompt = `Lê este texto (primeiras e últimas páginas de uma listagem).
Encontra o número TOTAL DE REGISTOS declarado ('Total', 'Nº Registos', 'Nº de linhas', etc.).
Responde APENAS com o número inteiro. Se não encontrares, responde: null`

// Prompt returns the extraction instruction for a report type.
func Prompt(report models.ReportType) string {
	switch report {
	case models.ReportFees:
		return feesPrompt
	case models.ReportAnesthesia:
		return anesthesiaPrompt
	case models.ReportConsultations:
		return consultationsPrompt
	default:
		return specialExamsPrompt
	}
}

// ForReport returns a Client that prompts for the records of report.
func ForReport(gen Generator, report models.ReportType, opts Options) *Client {
	opts.Prompt = Prompt(report)
	return NewClient(gen, opts)
}
