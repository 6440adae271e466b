package db

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tavern/internal/models"
)

// Structure is the YAML layout accepted by ImportStructure:
//
//	categories:
//	  - name: General
//	    forums:
//	      - name: Announcements
//	        topics:
//	          - title: Welcome aboard
//	            author: admin
//	            content: ...
type Structure struct {
	Categories []CategorySeed `yaml:"categories"`
}

type CategorySeed struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Order       int         `yaml:"order"`
	Forums      []ForumSeed `yaml:"forums"`
}

type ForumSeed struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Order       int         `yaml:"order"`
	Topics      []TopicSeed `yaml:"topics"`
}

type TopicSeed struct {
	Title   string      `yaml:"title"`
	Author  string      `yaml:"author"`
	Content string      `yaml:"content"`
	Tags    []string    `yaml:"tags"`
	Sticky  bool        `yaml:"sticky"`
	Locked  bool        `yaml:"locked"`
	Replies []ReplySeed `yaml:"replies"`
}

type ReplySeed struct {
	Author  string `yaml:"author"`
	Content string `yaml:"content"`
}

type ImportResult struct {
	CategoriesCreated int `json:"categories_created"`
	ForumsCreated     int `json:"forums_created"`
	TopicsCreated     int `json:"topics_created"`
	RepliesCreated    int `json:"replies_created"`
}

var DefaultStructure = Structure{
	Categories: []CategorySeed{
		{
			Name:        "General",
			Description: "Everything about this community",
			Order:       1,
			Forums: []ForumSeed{
				{Name: "Announcements", Description: "News from the moderators", Order: 1},
				{Name: "General Discussion", Description: "Talk about anything", Order: 2},
			},
		},
		{
			Name:        "Support",
			Description: "Questions and answers",
			Order:       2,
			Forums: []ForumSeed{
				{Name: "Help Desk", Description: "Ask for help and mark the answer that solved it", Order: 1},
			},
		},
	},
}

func ParseStructure(r io.Reader) (Structure, error) {
	var s Structure
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return Structure{}, fmt.Errorf("parse structure: %w", err)
	}
	return s, nil
}

func ImportStructureFile(ctx context.Context, database *DB, actor models.Actor, path string) (ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, err
	}
	defer f.Close()
	s, err := ParseStructure(f)
	if err != nil {
		return ImportResult{}, err
	}
	return ImportStructure(ctx, database, actor, s)
}

// ImportStructure creates the categories and forums of s that do not exist
// yet. Categories match by name, forums by name within their category. Seed
// topics are only created in forums this call created, so importing the
// same document twice is a no-op.
func ImportStructure(ctx context.Context, database *DB, actor models.Actor, s Structure) (ImportResult, error) {
	var res ImportResult
	categories, err := ListCategories(ctx, database)
	if err != nil {
		return res, err
	}
	for _, cs := range s.Categories {
		category := findCategory(categories, cs.Name)
		if category == nil {
			category, err = CreateCategory(ctx, database, actor, CategoryParams{
				Name:         cs.Name,
				Description:  cs.Description,
				DisplayOrder: cs.Order,
			})
			if err != nil {
				return res, fmt.Errorf("category %q: %w", cs.Name, err)
			}
			categories = append(categories, *category)
			res.CategoriesCreated++
		}

		forums, err := ListForums(ctx, database, category.ID)
		if err != nil {
			return res, fmt.Errorf("category %q: %w", cs.Name, err)
		}
		for _, fs := range cs.Forums {
			if findForum(forums, fs.Name) != nil {
				continue
			}
			forum, err := CreateForum(ctx, database, actor, ForumParams{
				CategoryID:   category.ID,
				Name:         fs.Name,
				Description:  fs.Description,
				DisplayOrder: fs.Order,
			})
			if err != nil {
				return res, fmt.Errorf("forum %q: %w", fs.Name, err)
			}
			forums = append(forums, *forum)
			res.ForumsCreated++

			for _, ts := range fs.Topics {
				if err := importTopic(ctx, database, actor, forum.ID, ts, &res); err != nil {
					return res, fmt.Errorf("topic %q: %w", ts.Title, err)
				}
			}
		}
	}
	return res, nil
}

func findCategory(categories []models.Category, name string) *models.Category {
	for i := range categories {
		if strings.EqualFold(categories[i].Name, strings.TrimSpace(name)) {
			return &categories[i]
		}
	}
	return nil
}

func findForum(forums []models.Forum, name string) *models.Forum {
	for i := range forums {
		if strings.EqualFold(forums[i].Name, strings.TrimSpace(name)) {
			return &forums[i]
		}
	}
	return nil
}

func importTopic(ctx context.Context, database *DB, fallback models.Actor, forumID int64, ts TopicSeed, res *ImportResult) error {
	author, err := seedActor(ctx, database, ts.Author, fallback)
	if err != nil {
		return err
	}
	topic, err := CreateTopic(ctx, database, author, CreateTopicParams{
		ForumID: forumID,
		Title:   ts.Title,
		Content: ts.Content,
		Tags:    ts.Tags,
		Sticky:  ts.Sticky,
	})
	if err != nil {
		return err
	}
	res.TopicsCreated++

	for _, rs := range ts.Replies {
		replier, err := seedActor(ctx, database, rs.Author, fallback)
		if err != nil {
			return err
		}
		if _, err := CreateReply(ctx, database, replier, topic.ID, rs.Content); err != nil {
			return err
		}
		res.RepliesCreated++
	}
	if ts.Locked {
		if _, err := ToggleLock(ctx, database, fallback, topic.ID); err != nil {
			return err
		}
	}
	return nil
}

func seedActor(ctx context.Context, database *DB, username string, fallback models.Actor) (models.Actor, error) {
	if username == "" {
		return fallback, nil
	}
	u, err := GetUserByUsername(ctx, database, username)
	if err != nil {
		return models.Actor{}, fmt.Errorf("author %q: %w", username, err)
	}
	return u.Actor(), nil
}
