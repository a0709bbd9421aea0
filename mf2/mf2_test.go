package mf2

import (
	"testing"
)

const replyHTML = `<html><body>
<article class="h-entry">
<a class="u-url" href="https://alice.example/reply"></a>
<div class="e-content">good point</div>
<a class="u-in-reply-to" href="https://bob.example/post">in reply to</a>
</article>
</body></html>`

func TestFindEntry(t *testing.T) {
	data := ParsePage([]byte(replyHTML), "https://alice.example/reply")
	entry := FindEntry(data, "")
	if entry == nil {
		t.Fatal("Expected an h-entry")
	}
}

func TestFindEntryFragment(t *testing.T) {
	page := `<html><body>
<article class="h-entry" id="first"><div class="e-content">one</div></article>
<article class="h-entry" id="second"><div class="e-content">two</div></article>
</body></html>`
	data := ParsePage([]byte(page), "https://alice.example/")

	entry := FindEntry(data, "second")
	if entry == nil {
		t.Fatal("Expected the fragment entry")
	}
	if PropertyContent(entry.Properties["content"]) != "two" {
		t.Errorf("Wrong entry matched: %v", entry.Properties["content"])
	}

	if FindEntry(data, "nope") != nil {
		t.Error("Unknown fragment should not match")
	}
}

func TestEntryToActivityReply(t *testing.T) {
	data := ParsePage([]byte(replyHTML), "https://alice.example/reply")
	activity := EntryToActivity(FindEntry(data, ""), "https://alice.example/reply")

	if activity["objectType"] != "comment" {
		t.Errorf("Expected a comment, got %v", activity["objectType"])
	}
	if activity["url"] != "https://alice.example/reply" {
		t.Errorf("Unexpected url: %v", activity["url"])
	}
	replyTo, _ := activity["inReplyTo"].([]string)
	if len(replyTo) != 1 || replyTo[0] != "https://bob.example/post" {
		t.Errorf("Unexpected inReplyTo: %v", activity["inReplyTo"])
	}
	if activity["content"] != "good point" {
		t.Errorf("Unexpected content: %v", activity["content"])
	}
}

func TestEntryToActivityLike(t *testing.T) {
	page := `<html><body>
<article class="h-entry"><a class="u-like-of" href="https://bob.example/post">like</a></article>
</body></html>`
	data := ParsePage([]byte(page), "https://alice.example/like")
	activity := EntryToActivity(FindEntry(data, ""), "https://alice.example/like")

	if activity["verb"] != "like" {
		t.Errorf("Expected verb like, got %v", activity["verb"])
	}
	objects, _ := activity["object"].([]string)
	if len(objects) != 1 || objects[0] != "https://bob.example/post" {
		t.Errorf("Unexpected object: %v", activity["object"])
	}
	// Entry has no url property, so the id falls back to the page URL
	if activity["id"] != "https://alice.example/like" {
		t.Errorf("Unexpected id: %v", activity["id"])
	}
}

func TestEntryToActivityArticle(t *testing.T) {
	page := `<html><body>
<article class="h-entry">
<h1 class="p-name">On Federation</h1>
<div class="e-content">Long form thoughts.</div>
</article>
</body></html>`
	data := ParsePage([]byte(page), "https://alice.example/essay")
	activity := EntryToActivity(FindEntry(data, ""), "https://alice.example/essay")

	if activity["objectType"] != "article" {
		t.Errorf("Named entry with distinct content should be an article, got %v", activity["objectType"])
	}
	if activity["displayName"] != "On Federation" {
		t.Errorf("Unexpected displayName: %v", activity["displayName"])
	}
}

func TestSerializeExtractContent(t *testing.T) {
	data := ParsePage([]byte(replyHTML), "https://alice.example/reply")
	snapshot := Serialize(data)
	if snapshot == "" {
		t.Fatal("Expected a serialized snapshot")
	}

	if got := ExtractContent(snapshot); got != "good point" {
		t.Errorf("Expected content round-trip, got %q", got)
	}
	if ExtractContent("") != "" {
		t.Error("Empty snapshot should yield empty content")
	}
	if ExtractContent("not json") != "" {
		t.Error("Broken snapshot should yield empty content")
	}
}
