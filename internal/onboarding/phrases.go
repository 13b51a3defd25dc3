package onboarding

import "strings"

// firstAccessPhrases 表示用户首次使用系统的短语。
var firstAccessPhrases = []string{
	"primeiro acesso", "primeira vez", "novo usuário", "nova conta",
	"começar", "iniciar", "não tenho conta", "sou novo", "nova aqui",
	"novo aqui", "primeira vez que entro", "primeira vez que uso",
	"novo no sistema", "nova no sistema",
}

// existingPhrases 表示用户声称已有画像。
var existingPhrases = []string{
	"já tenho", "meu perfil", "já fiz", "continuar", "já cadastrei",
}

// IsFirstAccess 判断文本是否包含首次访问短语（大小写不敏感的子串匹配）。
func IsFirstAccess(text string) bool {
	return containsAny(strings.ToLower(text), firstAccessPhrases)
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
