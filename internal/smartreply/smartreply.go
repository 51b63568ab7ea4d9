// Package smartreply answers frequent questions from a fixed rule table so
// the paid completion API is only hit when no canned reply applies.
package smartreply

import (
	"regexp"
	"strings"
)

type rule struct {
	pattern *regexp.Regexp
	reply   string
}

// Matcher holds an ordered rule table; rules are tested sequentially and
// the first match wins.
type Matcher struct {
	rules []rule
}

func NewMatcher() *Matcher {
	return &Matcher{rules: []rule{
		{
			regexp.MustCompile(`(?i)\b(bonjour|salut|hello|coucou|hey)\b`),
			"Bonjour ! Je suis l'assistant virtuel Freedesk. Comment puis-je vous aider aujourd'hui ?",
		},
		{
			regexp.MustCompile(`(?i)\b(merci|remercie|top|super)\b`),
			"Je vous en prie ! Ravi d'avoir pu vous aider. Avez-vous d'autres questions ?",
		},
		{
			regexp.MustCompile(`(?i)\b(au revoir|bye|adieu|bonne journ(ée|ee)|bonne soir(ée|ee))\b`),
			"Au revoir ! Toute l'équipe vous souhaite une excellente journée.",
		},
		{
			regexp.MustCompile(`(?i)\b(facture|payer|paiement|prélèvement|montant)\b`),
			"Vous pouvez consulter, télécharger et payer vos factures directement depuis votre espace client, rubrique 'Mon abonnement' > 'Mes factures'.",
		},
		{
			regexp.MustCompile(`(?i)\b(mot de passe|mdp|password|identifiant|connexion|connecter)\b`),
			"Pour récupérer vos identifiants ou réinitialiser votre mot de passe, rendez-vous sur la page de connexion de l'espace client et cliquez sur 'Mot de passe oublié'.",
		},
		{
			regexp.MustCompile(`(?i)\b(humain|personne|agent|conseiller|téléphone|appeler)\b`),
			"Si je ne parviens pas à vous aider, un agent peut prendre le relais : laissez votre demande ici et vous serez recontacté rapidement.",
		},
		{
			regexp.MustCompile(`(?i)\b(boutique|magasin|agence)\b`),
			"Vous trouverez la boutique la plus proche de chez vous sur la page 'Nos boutiques' de notre site.",
		},
		{
			regexp.MustCompile(`(?i)\b(déménagement|déménager|demenagement|demenager)\b`),
			"Vous déménagez ? Déclarez votre déménagement dans votre espace client, rubrique 'Mon abonnement' > 'Déménager mon abonnement', idéalement 15 jours avant.",
		},
		{
			regexp.MustCompile(`(?i)\b(panne générale|incident|coupure générale)\b`),
			"Vous pouvez vérifier l'état du réseau dans votre zone depuis la page d'état du service ou votre espace client.",
		},
	}}
}

// Match returns the canned reply for message, if any rule applies.
func (m *Matcher) Match(message string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(message))
	for _, r := range m.rules {
		if r.pattern.MatchString(normalized) {
			return r.reply, true
		}
	}
	return "", false
}
