package tagger

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tg := New(nil, nil)

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "english words lowercased",
			text: "Burn Team DPS",
			want: []string{"burn", "team", "dps"},
		},
		{
			name: "cjk unigrams and bigrams",
			text: "燃烧队",
			want: []string{"燃", "烧", "队", "燃烧", "烧队"},
		},
		{
			name: "mixed text",
			text: "EGO侵蚀",
			want: []string{"ego", "侵", "蚀", "侵蚀"},
		},
		{
			name: "punctuation ignored",
			text: "clash, coin!",
			want: []string{"clash", "coin"},
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tg.Tokenize(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestTagsStatusAndTeam(t *testing.T) {
	tg := New(nil, nil)

	tags := tg.Tags("燃烧队配队思路：以辛克莱为核心")

	want := map[string]bool{
		"status:burn":     true,
		"team:team-build": true,
		"persona:辛克莱":     true,
	}
	got := make(map[string]bool)
	for _, tag := range tags {
		got[tag.String()] = true
	}
	for w := range want {
		if !got[w] {
			t.Errorf("Tags missing %q, got %v", w, tags)
		}
	}
}

func TestTagsDeterministic(t *testing.T) {
	tg := New(nil, nil)
	text := "镜牢 burn 配队 EGO 侵蚀 良秀"

	first := tg.Tags(text)
	for range 10 {
		if again := tg.Tags(text); !reflect.DeepEqual(first, again) {
			t.Fatalf("Tags not deterministic: %v vs %v", first, again)
		}
	}
}

func TestTagsViaAlias(t *testing.T) {
	// "火队" is not a built-in keyword; registered as a synonym of 燃烧 it
	// must contribute the burn tag.
	tg := New(map[string]string{"火队": "燃烧"}, nil)

	tags := tg.Tags("火队怎么玩")
	found := false
	for _, tag := range tags {
		if tag.String() == "status:burn" {
			found = true
		}
	}
	if !found {
		t.Errorf("alias did not contribute canonical tag, got %v", tags)
	}
}

func TestTagsStatusMapping(t *testing.T) {
	mappings := []StatusMapping{
		{Term: "燃烧", Subcategory: "burn-dot", Display: "持续伤害"},
		{Term: "燃烧", Subcategory: "burn-count", Display: "层数"},
	}
	tg := New(nil, mappings)

	tags := tg.Tags("燃烧层数怎么算")
	got := make(map[string]bool)
	for _, tag := range tags {
		got[tag.String()] = true
	}
	if !got["status:burn-dot"] || !got["status:burn-count"] {
		t.Errorf("status mappings missing from tags: %v", tags)
	}
}

func TestApplyAliases(t *testing.T) {
	tg := New(map[string]string{
		"md":   "镜牢",
		"镜像迷宫": "镜牢",
	}, nil)

	if got := tg.ApplyAliases("MD怎么刷"); got != "镜牢怎么刷" {
		t.Errorf("ApplyAliases = %q, want %q", got, "镜牢怎么刷")
	}
	if got := tg.ApplyAliases("镜像迷宫攻略"); got != "镜牢攻略" {
		t.Errorf("ApplyAliases = %q, want %q", got, "镜牢攻略")
	}
}

func TestExpandTokens(t *testing.T) {
	tg := New(map[string]string{"md": "镜牢"}, nil)

	got := tg.ExpandTokens([]string{"md"})

	want := map[string]bool{"md": true, "镜": true, "牢": true, "镜牢": true}
	for w := range want {
		found := false
		for _, tok := range got {
			if tok == w {
				found = true
			}
		}
		if !found {
			t.Errorf("ExpandTokens missing %q, got %v", w, got)
		}
	}

	// Reverse direction: a canonical token picks up its synonyms.
	got = tg.ExpandTokens([]string{"镜牢"})
	found := false
	for _, tok := range got {
		if tok == "md" {
			found = true
		}
	}
	if !found {
		t.Errorf("ExpandTokens did not include synonym, got %v", got)
	}
}

func TestTaggerIsPure(t *testing.T) {
	tg := New(map[string]string{"md": "镜牢"}, nil)
	text := "md 燃烧"

	before := tg.Tags(text)
	_ = tg.Tokenize(text)
	_ = tg.ApplyAliases(text)
	after := tg.Tags(text)

	if !reflect.DeepEqual(before, after) {
		t.Errorf("Tags changed across calls: %v vs %v", before, after)
	}
}
