package spacecatsrest

import (
	"fmt"
	"time"

	"github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/spacecats-dao/spacecats-sync/cache"
	"github.com/spacecats-dao/spacecats-sync/post"
)

const Schema = `
schema {
  query: Query
}

type Query {
  # newest first
  posts(first: Int, author: String): [Post!]!
  post(id: ID!): Post
}

type Post {
  id: ID!
  content: String!
  author: String!
  # RFC 3339
  timestamp: String!
  # unix milliseconds
  timestampMs: Float!
}
`

type Resolver struct {
	timeline *cache.Timeline
}

type PostsArgs struct {
	First  *int32
	Author *string
}

func (r *Resolver) Posts(args PostsArgs) []*PostResolver {
	var out []*PostResolver
	for _, p := range r.timeline.Snapshot() {
		if args.First != nil && int32(len(out)) >= *args.First {
			break
		}
		if args.Author != nil && p.Author != *args.Author {
			continue
		}
		out = append(out, &PostResolver{p: p})
	}
	if out == nil {
		out = []*PostResolver{}
	}
	return out
}

func (r *Resolver) Post(args struct{ ID graphql.ID }) *PostResolver {
	p, ok := r.timeline.Find(string(args.ID))
	if !ok {
		return nil
	}
	return &PostResolver{p: p}
}

type PostResolver struct {
	p post.DurablePost
}

func (r *PostResolver) ID() graphql.ID       { return graphql.ID(r.p.ID) }
func (r *PostResolver) Content() string      { return r.p.Content }
func (r *PostResolver) Author() string       { return r.p.Author }
func (r *PostResolver) Timestamp() string    { return r.p.Timestamp.UTC().Format(time.RFC3339) }
func (r *PostResolver) TimestampMs() float64 { return float64(r.p.Timestamp.UnixMilli()) }

// GraphQLRelay builds the GraphQL handler over timeline.
func GraphQLRelay(timeline *cache.Timeline, allowIntrospection bool) (*relay.Handler, error) {
	opts := []graphql.SchemaOpt{
		graphql.MaxDepth(15),
	}
	if !allowIntrospection {
		opts = append(opts, graphql.DisableIntrospection())
	}

	schema, err := graphql.ParseSchema(Schema, &Resolver{timeline: timeline}, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse schema: %w", err)
	}
	return &relay.Handler{Schema: schema}, nil
}
