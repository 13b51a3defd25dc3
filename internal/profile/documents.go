package profile

import (
	"fmt"
	"time"
)

// DocType 是画像派生文档在检索索引中的类型标记。
const DocType = "user_profile"

// Document 是写入检索索引的派生文档。
type Document struct {
	Text     string
	Metadata map[string]any
}

// Documents 将画像拆分为个人、职业、偏好三份文档，元数据以 user_id 为键。
func Documents(p *Profile, now time.Time) []Document {
	if p == nil {
		return nil
	}
	name := p.PersonalInfo.Nome
	pi, pr, pf := p.PersonalInfo, p.ProfessionalInfo, p.Preferences

	build := func(kind, category, text string) Document {
		return Document{
			Text: text,
			Metadata: map[string]any{
				"user_id":   p.UserID,
				"doc_type":  DocType,
				"section":   kind,
				"category":  category,
				"timestamp": now.UTC().Format(time.RFC3339),
			},
		}
	}

	return []Document{
		build("personal_info", "personal", fmt.Sprintf(
			"Informações pessoais de %s:\n- Nome: %s\n- Idade: %s\n- Localização: %s\n- Experiência bancária: %s",
			name, pi.Nome, pi.Idade, pi.Localizacao, pi.ExperienciaBancaria)),
		build("professional_info", "professional", fmt.Sprintf(
			"Informações profissionais de %s:\n- Cargo: %s\n- Área: %s\n- Experiência: %s anos\n- Atividades principais: %s\n- Nível de acesso: %s",
			name, pr.Cargo, pr.Area, pr.ExperienciaAnos, pr.PrincipaisAtividades, pr.NivelAcesso)),
		build("preferences", "preferences", fmt.Sprintf(
			"Preferências de uso de %s:\n- Sites frequentes: %s\n- Ferramentas favoritas: %s\n- Tipo de conteúdo: %s\n- Formato preferido: %s\n- Horário de pico: %s",
			name, pf.SitesFrequentes, pf.FerramentasFavoritas, pf.TipoConteudo, pf.FormatoPreferido, pf.HorarioPico)),
	}
}

// Split 将文档拆为文本与元数据切片，便于批量写入索引。
func Split(docs []Document) ([]string, []map[string]any) {
	texts := make([]string, len(docs))
	meta := make([]map[string]any, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
		meta[i] = d.Metadata
	}
	return texts, meta
}
