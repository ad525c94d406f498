// internal/moderator/firewall/conditions.go
package firewall

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"

	"github.com/chatguard/chatguard/internal/models"
)

// urlPattern находит ссылки в тексте сообщения
var urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"]+`)

// matchRule проверяет, срабатывает ли правило на событие.
// match_all=true — AND по условиям, иначе OR. Пустой список условий при
// match_all=true совпадает со всем (вакуумная истина, намеренно) // v1.0
func matchRule(event *models.Event, rule *models.FirewallRuleConfig, now time.Time) bool {
	if len(rule.Conditions) == 0 {
		return rule.MatchAll
	}

	if rule.MatchAll {
		for _, cond := range rule.Conditions {
			if !evaluateCondition(event, cond, now) {
				return false
			}
		}
		return true
	}

	for _, cond := range rule.Conditions {
		if evaluateCondition(event, cond, now) {
			return true
		}
	}
	return false
}

// evaluateCondition оценивает одно условие. Неизвестный тип условия не
// совпадает: некорректная конфигурация не должна наказывать участника // v1.0
func evaluateCondition(event *models.Event, cond models.RuleCondition, now time.Time) bool {
	switch cond.Type {
	case models.ConditionTextContains:
		return matchTextContains(event, cond)
	case models.ConditionRegex:
		return matchRegex(event, cond)
	case models.ConditionKeyword:
		return matchKeywords(event, cond)
	case models.ConditionMediaType:
		return matchMediaTypes(event, cond)
	case models.ConditionLinkDomain:
		return matchLinkDomains(event, cond)
	case models.ConditionUserRole:
		return matchUserRole(event, cond)
	case models.ConditionTimeRange:
		return matchTimeRange(cond, now)
	case models.ConditionMessageLength:
		return matchMessageLength(event, cond)
	default:
		return false
	}
}

// matchTextContains проверяет вхождение подстроки.
// По умолчанию чувствительно к регистру // v1.0
func matchTextContains(event *models.Event, cond models.RuleCondition) bool {
	if !event.HasText() {
		return false
	}
	text := event.Message.Text
	needle := cond.Text
	if cond.CaseSensitive != nil && !*cond.CaseSensitive {
		text = strings.ToLower(text)
		needle = strings.ToLower(needle)
	}
	return strings.Contains(text, needle)
}

// matchRegex проверяет текст регулярным выражением. Шаблон валидируется
// при записи правила; если некорректный все же дошел сюда, условие просто
// не совпадает // v1.0
func matchRegex(event *models.Event, cond models.RuleCondition) bool {
	if !event.HasText() {
		return false
	}
	pattern := cond.Pattern
	if cond.Flags != "" {
		pattern = "(?" + cond.Flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(event.Message.Text)
}

// matchKeywords проверяет набор ключевых слов в режиме any или all // v1.0
func matchKeywords(event *models.Event, cond models.RuleCondition) bool {
	if !event.HasText() || len(cond.Keywords) == 0 {
		return false
	}

	text := event.Message.Text
	if cond.CaseFold {
		text = strings.ToLower(text)
	}

	matchAll := cond.Match == models.KeywordMatchAll
	for _, kw := range cond.Keywords {
		if cond.CaseFold {
			kw = strings.ToLower(kw)
		}
		found := strings.Contains(text, kw)
		if matchAll && !found {
			return false
		}
		if !matchAll && found {
			return true
		}
	}

	return matchAll
}

// matchMediaTypes проверяет вид вложений события // v1.0
func matchMediaTypes(event *models.Event, cond models.RuleCondition) bool {
	if !event.HasMedia() {
		return false
	}
	for _, kind := range event.MediaKinds() {
		for _, want := range cond.MediaTypes {
			if kind == want {
				return true
			}
		}
	}
	return false
}

// matchLinkDomains извлекает домены из текста и entities и сравнивает
// с настроенным набором, точно либо по суффиксу поддоменов // v1.0
func matchLinkDomains(event *models.Event, cond models.RuleCondition) bool {
	hosts := extractHosts(event)
	if len(hosts) == 0 {
		return false
	}

	for _, host := range hosts {
		for _, domain := range cond.Domains {
			if domainMatches(host, strings.ToLower(domain), cond.IncludeSubdomains) {
				return true
			}
		}
	}
	return false
}

// domainMatches сравнивает хост с доменом // v1.0
func domainMatches(host, domain string, includeSubdomains bool) bool {
	if host == domain {
		return true
	}
	if !includeSubdomains {
		return false
	}
	if strings.HasSuffix(host, "."+domain) {
		return true
	}
	// Хост вида a.b.example.co.uk против example.co.uk: сравниваем
	// регистрируемый домен по публичному суффиксу
	if etld, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil && etld == domain {
		return true
	}
	return false
}

// extractHosts возвращает хосты всех ссылок события в нижнем регистре // v1.0
func extractHosts(event *models.Event) []string {
	if event.Message == nil {
		return nil
	}

	var raw []string
	raw = append(raw, urlPattern.FindAllString(event.Message.Text, -1)...)
	for _, entity := range event.Message.Entities {
		if entity.URL != "" {
			raw = append(raw, entity.URL)
		}
	}

	var hosts []string
	for _, candidate := range raw {
		candidate = strings.TrimRight(candidate, ".,;:!?)")
		if !strings.Contains(candidate, "://") {
			candidate = "http://" + candidate
		}
		parsed, err := url.Parse(candidate)
		if err != nil || parsed.Hostname() == "" {
			continue
		}
		hosts = append(hosts, strings.ToLower(parsed.Hostname()))
	}
	return hosts
}

// matchUserRole проверяет роль отправителя // v1.0
func matchUserRole(event *models.Event, cond models.RuleCondition) bool {
	role := event.SenderRole()
	for _, want := range cond.Roles {
		if role == want {
			return true
		}
	}
	return false
}

// matchTimeRange проверяет попадание текущего часа в [start, end) с
// переходом через полночь (22→6 покрывает ночь) // v1.0
func matchTimeRange(cond models.RuleCondition, now time.Time) bool {
	if cond.StartHour == nil || cond.EndHour == nil {
		return false
	}

	loc := time.UTC
	if cond.Timezone != "" {
		if l, err := time.LoadLocation(cond.Timezone); err == nil {
			loc = l
		}
	}

	hour := now.In(loc).Hour()
	start, end := *cond.StartHour, *cond.EndHour

	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	// Интервал через полночь
	return hour >= start || hour < end
}

// matchMessageLength проверяет длину текста в рунах. Отсутствующая
// граница означает неограниченность с этой стороны // v1.0
func matchMessageLength(event *models.Event, cond models.RuleCondition) bool {
	if event.Message == nil {
		return false
	}
	length := utf8.RuneCountInString(event.Message.Text)
	if cond.MinLength != nil && length < *cond.MinLength {
		return false
	}
	if cond.MaxLength != nil && length > *cond.MaxLength {
		return false
	}
	return cond.MinLength != nil || cond.MaxLength != nil
}
