package chat

import (
	"strings"
	"unicode"
)

// rule matches a lowercased message. With all set every keyword must be
// present, otherwise any one of them.
type rule struct {
	keywords []string
	all      bool
	words    bool
	reply    string
}

func (r rule) matches(text string, words map[string]bool) bool {
	for _, k := range r.keywords {
		var hit bool
		if r.words {
			hit = words[k]
		} else {
			hit = strings.Contains(text, k)
		}
		if r.all && !hit {
			return false
		}
		if !r.all && hit {
			return true
		}
	}
	return r.all
}

// Greeting is the first bot message of an empty conversation.
const Greeting = "Hi there! I'm PayBot, your virtual assistant. I can help with questions about topping up, where to pay on campus, spending limits and reporting suspicious activity."

const fallbackReply = "I'm not sure I understand. Could you rephrase your question? You can also check out the FAQs in the Settings section for more information."

var rules = []rule{
	{
		keywords: []string{"add money", "deposit", "top up", "topup"},
		reply:    "To add money to your account, go to your Balance Card on the home page and tap 'Add Money'. You can add funds using a debit card, bank transfer, or cash deposit at participating locations.",
	},
	{
		keywords: []string{"where", "use"},
		all:      true,
		reply:    "You can use your account at all campus locations, including the cafeteria, bookstore, printing services, and vending machines. Just tap your NFC-enabled device at checkout!",
	},
	{
		keywords: []string{"suspicious", "fraud", "report"},
		reply:    "If you notice any suspicious activity, please go to Settings > Security and tap 'Report Suspicious Activity'. You can also freeze your account from the same menu if needed.",
	},
	{
		keywords: []string{"limits", "limit", "maximum"},
		reply:    "Standard accounts have a daily spending limit of $500 and a monthly limit of $3,000. You can view or request limit changes in your Profile > Payment Methods section.",
	},
	{
		keywords: []string{"budget", "saving", "save money"},
		reply:    "Creating a budget is key to financial health. Track your income and expenses, set realistic saving goals and consider automating your savings. The Insights page shows your spending per category.",
	},
}

var greetingRule = rule{keywords: []string{"hi", "hello", "hey"}, words: true}

// Reply returns the scripted answer to text. name personalizes greetings.
func Reply(text, name string) string {
	lower := strings.ToLower(text)
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = true
	}

	for _, r := range rules {
		if r.matches(lower, words) {
			return r.reply
		}
	}
	if greetingRule.matches(lower, words) {
		if name != "" {
			return "Hello " + name + "! How can I help you today?"
		}
		return "Hello! How can I help you today?"
	}
	return fallbackReply
}
