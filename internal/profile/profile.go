// Package profile 管理用户画像：以 users/<id>.json 为权威数据，检索索引只是可重建的派生视图。
package profile

import (
	"fmt"
	"strings"
	"time"
)

// Version 标记画像结构版本。
const Version = "3.0"

// PersonalInfo 为个人信息。
type PersonalInfo struct {
	Nome                string `json:"nome"`
	Idade               string `json:"idade"`
	Localizacao         string `json:"localizacao"`
	ExperienciaBancaria string `json:"experiencia_bancaria"`
}

// ProfessionalInfo 为职业信息。
type ProfessionalInfo struct {
	Cargo                string `json:"cargo"`
	Area                 string `json:"area"`
	ExperienciaAnos      string `json:"experiencia_anos"`
	PrincipaisAtividades string `json:"principais_atividades"`
	NivelAcesso          string `json:"nivel_acesso"`
}

// Preferences 为使用偏好。
type Preferences struct {
	SitesFrequentes      string `json:"sites_frequentes"`
	FerramentasFavoritas string `json:"ferramentas_favoritas"`
	TipoConteudo         string `json:"tipo_conteudo"`
	FormatoPreferido     string `json:"formato_preferido"`
	HorarioPico          string `json:"horario_pico"`
}

// Turn 是引导对话中的一条消息。
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Profile 是完成引导后保存的用户画像，重新引导时整体替换。
type Profile struct {
	UserID              string           `json:"user_id"`
	PersonalInfo        PersonalInfo     `json:"personal_info"`
	ProfessionalInfo    ProfessionalInfo `json:"professional_info"`
	Preferences         Preferences      `json:"preferences"`
	UsagePatterns       map[string]any   `json:"usage_patterns"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	OnboardingVersion   string           `json:"onboarding_version"`
	ConversationHistory []Turn           `json:"conversation_history,omitempty"`
}

// DefaultUsagePatterns 在模型无法估算使用模式时使用。
func DefaultUsagePatterns() map[string]any {
	return map[string]any{
		"frequencia_uso":     "diario",
		"tipo_operacoes":     []any{"pesquisa_regulatoria"},
		"prioridades":        []any{"conformidade"},
		"horarios_atividade": []any{"09:00-18:00"},
	}
}

// FromCollected 将引导过程中收集的键值整理为画像。
func FromCollected(userID string, collected map[string]string, now time.Time) *Profile {
	get := func(key string) string { return collected[key] }
	return &Profile{
		UserID: userID,
		PersonalInfo: PersonalInfo{
			Nome:                get("nome"),
			Idade:               get("idade"),
			Localizacao:         get("localizacao"),
			ExperienciaBancaria: get("experiencia_bancaria"),
		},
		ProfessionalInfo: ProfessionalInfo{
			Cargo:                get("cargo"),
			Area:                 get("area"),
			ExperienciaAnos:      get("experiencia_anos"),
			PrincipaisAtividades: get("principais_atividades"),
			NivelAcesso:          get("nivel_acesso"),
		},
		Preferences: Preferences{
			SitesFrequentes:      get("sites_frequentes"),
			FerramentasFavoritas: get("ferramentas_favoritas"),
			TipoConteudo:         get("tipo_conteudo"),
			FormatoPreferido:     get("formato_preferido"),
			HorarioPico:          get("horario_pico"),
		},
		UsagePatterns:     DefaultUsagePatterns(),
		CreatedAt:         now,
		UpdatedAt:         now,
		OnboardingVersion: Version,
	}
}

// Context 是提供给其他智能体的用户上下文。
type Context struct {
	UserID           string           `json:"user_id"`
	PersonalInfo     PersonalInfo     `json:"personal_info"`
	ProfessionalInfo ProfessionalInfo `json:"professional_info"`
	Preferences      Preferences      `json:"preferences"`
	UsagePatterns    map[string]any   `json:"usage_patterns"`
	ContextSummary   string           `json:"context_summary,omitempty"`
	LastUpdated      time.Time        `json:"last_updated"`
}

// ContextOf 由画像生成上下文。
func ContextOf(p *Profile, summary string) *Context {
	if p == nil {
		return nil
	}
	return &Context{
		UserID:           p.UserID,
		PersonalInfo:     p.PersonalInfo,
		ProfessionalInfo: p.ProfessionalInfo,
		Preferences:      p.Preferences,
		UsagePatterns:    p.UsagePatterns,
		ContextSummary:   summary,
		LastUpdated:      p.UpdatedAt,
	}
}

// Describe 生成一行个性化描述，供对话提示词使用。
func (c *Context) Describe() string {
	if c == nil {
		return ""
	}
	na := func(v string) string {
		if strings.TrimSpace(v) == "" {
			return "N/A"
		}
		return v
	}
	parts := []string{
		"Nome: " + na(c.PersonalInfo.Nome),
		"Localização: " + na(c.PersonalInfo.Localizacao),
		"Experiência bancária: " + na(c.PersonalInfo.ExperienciaBancaria),
		"Cargo: " + na(c.ProfessionalInfo.Cargo),
		"Área: " + na(c.ProfessionalInfo.Area),
		fmt.Sprintf("Experiência: %s anos", na(c.ProfessionalInfo.ExperienciaAnos)),
		"Sites frequentes: " + na(c.Preferences.SitesFrequentes),
		"Ferramentas favoritas: " + na(c.Preferences.FerramentasFavoritas),
	}
	if c.ContextSummary != "" {
		parts = append(parts, "Resumo: "+c.ContextSummary)
	}
	return strings.Join(parts, " | ")
}
