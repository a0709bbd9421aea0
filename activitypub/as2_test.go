package activitypub

import (
	"testing"

	"github.com/MarkWieczorek/bridgy-fed/domain"
	"github.com/MarkWieczorek/bridgy-fed/util"
)

func testConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.Domain = "fed.example.org"
	return conf
}

func TestFromAS1Note(t *testing.T) {
	as2 := FromAS1(map[string]any{
		"objectType": "comment",
		"id":         "https://alice.example/reply",
		"url":        "https://alice.example/reply",
		"content":    "good point",
		"inReplyTo":  []string{"https://bob.example/post"},
	})

	if as2["type"] != "Note" {
		t.Errorf("Expected Note, got %v", as2["type"])
	}
	if as2["inReplyTo"] != "https://bob.example/post" {
		t.Errorf("Unexpected inReplyTo: %v", as2["inReplyTo"])
	}
	if as2["content"] != "good point" {
		t.Errorf("Unexpected content: %v", as2["content"])
	}
}

func TestFromAS1Verbs(t *testing.T) {
	tests := []struct {
		verb string
		typ  string
	}{
		{"like", "Like"},
		{"favorite", "Like"},
		{"share", "Announce"},
		{"follow", "Follow"},
	}

	for _, tt := range tests {
		as2 := FromAS1(map[string]any{
			"verb":   tt.verb,
			"id":     "https://alice.example/x",
			"object": []string{"https://bob.example/post"},
		})
		if as2["type"] != tt.typ {
			t.Errorf("Verb %s: expected %s, got %v", tt.verb, tt.typ, as2["type"])
		}
		if as2["object"] != "https://bob.example/post" {
			t.Errorf("Verb %s: unexpected object %v", tt.verb, as2["object"])
		}
	}
}

func TestFromAS1Article(t *testing.T) {
	as2 := FromAS1(map[string]any{
		"objectType":  "article",
		"displayName": "On Federation",
		"content":     "Long form thoughts.",
	})
	if as2["type"] != "Article" || as2["name"] != "On Federation" {
		t.Errorf("Unexpected article translation: %v", as2)
	}
}

func TestPostprocessAS2WrapsInCreate(t *testing.T) {
	user := &domain.User{Domain: "alice.example"}
	as2 := PostprocessAS2(map[string]any{
		"type": "Note",
		"id":   "https://alice.example/post",
	}, user, testConf())

	if as2["type"] != "Create" {
		t.Fatalf("Expected a Create wrapper, got %v", as2["type"])
	}
	if as2["id"] != "https://alice.example/post#create" {
		t.Errorf("Unexpected Create id: %v", as2["id"])
	}
	if as2["@context"] != ContextURL {
		t.Errorf("Missing @context: %v", as2["@context"])
	}
	if as2["actor"] != "https://fed.example.org/alice.example" {
		t.Errorf("Unexpected actor: %v", as2["actor"])
	}
	to, _ := as2["to"].([]string)
	if len(to) != 1 || to[0] != PublicURL {
		t.Errorf("Create should address the public collection: %v", as2["to"])
	}
	if Object(as2)["id"] != "https://alice.example/post" {
		t.Errorf("Wrapped object lost its id: %v", as2["object"])
	}
}

func TestPostprocessAS2KeepsActivities(t *testing.T) {
	user := &domain.User{Domain: "alice.example"}
	as2 := PostprocessAS2(map[string]any{
		"type":   "Like",
		"id":     "https://alice.example/like",
		"object": "https://bob.example/post",
	}, user, testConf())

	if as2["type"] != "Like" {
		t.Errorf("Like should not be wrapped, got %v", as2["type"])
	}
	if _, ok := as2["to"]; ok {
		t.Error("Like should not be publicly addressed")
	}
}

func TestActorForUser(t *testing.T) {
	user := &domain.User{Domain: "alice.example", WebPublicKey: "PEM"}
	actor := ActorForUser(user, testConf())

	if actor["type"] != "Person" {
		t.Errorf("Expected Person, got %v", actor["type"])
	}
	if actor["preferredUsername"] != "alice.example" {
		t.Errorf("Unexpected preferredUsername: %v", actor["preferredUsername"])
	}
	key, _ := actor["publicKey"].(map[string]any)
	if key == nil || key["publicKeyPem"] != "PEM" {
		t.Errorf("Actor should expose the public key: %v", actor["publicKey"])
	}
}
