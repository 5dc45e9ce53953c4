package model

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestProduct_MarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		want    string
	}{
		{
			name:    "id and name only",
			product: Product{ID: 1, Name: "A"},
			want:    `{"id":1,"name":"A"}`,
		},
		{
			name:    "zero id is still written",
			product: Product{},
			want:    `{"id":0}`,
		},
		{
			name:    "all typed fields",
			product: Product{ID: 7, Name: "Lamp", Description: "desk lamp", Price: 19.5},
			want:    `{"id":7,"name":"Lamp","description":"desk lamp","price":19.5}`,
		},
		{
			name: "extra members follow in key order",
			product: Product{
				ID:   2,
				Name: "B",
				Extra: map[string]json.RawMessage{
					"stock":    json.RawMessage(`3`),
					"category": json.RawMessage(`"tools"`),
				},
			},
			want: `{"id":2,"name":"B","category":"tools","stock":3}`,
		},
		{
			name: "extra cannot shadow typed members",
			product: Product{
				ID: 3,
				Extra: map[string]json.RawMessage{
					"id": json.RawMessage(`99`),
				},
			},
			want: `{"id":3}`,
		},
		{
			name: "changed value replaces stale original text",
			product: Product{
				ID:    4,
				Price: 2,
				Extra: map[string]json.RawMessage{
					"price": json.RawMessage(`1.50`),
				},
			},
			want: `{"id":4,"price":2}`,
		},
		{
			name: "original text kept while it matches",
			product: Product{
				ID:    5,
				Price: 1.5,
				Extra: map[string]json.RawMessage{
					"price": json.RawMessage(`1.50`),
				},
			},
			want: `{"id":5,"price":1.50}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			data, err := json.Marshal(tt.product)

			// Assert
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal() = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestProduct_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Product
		wantErr bool
	}{
		{
			name:  "typed fields",
			input: `{"id":1,"name":"A","price":2.5}`,
			want:  Product{ID: 1, Name: "A", Price: 2.5},
		},
		{
			name:  "unknown members kept",
			input: `{"id":4,"color":"red","tags":["a","b"]}`,
			want: Product{
				ID: 4,
				Extra: map[string]json.RawMessage{
					"color": json.RawMessage(`"red"`),
					"tags":  json.RawMessage(`["a","b"]`),
				},
			},
		},
		{
			name:  "missing id decodes as zero",
			input: `{"name":"nameless"}`,
			want:  Product{Name: "nameless"},
		},
		{
			name:  "explicit zero price kept as original text",
			input: `{"id":1,"price":0}`,
			want: Product{
				ID:    1,
				Extra: map[string]json.RawMessage{"price": json.RawMessage(`0`)},
			},
		},
		{
			name:  "case variant member is not bound",
			input: `{"id":1,"Name":"A"}`,
			want: Product{
				ID:    1,
				Extra: map[string]json.RawMessage{"Name": json.RawMessage(`"A"`)},
			},
		},
		{
			name:  "upper-case ID does not replace id",
			input: `{"id":1,"ID":5}`,
			want: Product{
				ID:    1,
				Extra: map[string]json.RawMessage{"ID": json.RawMessage(`5`)},
			},
		},
		{
			name:    "string id rejected",
			input:   `{"id":"1"}`,
			wantErr: true,
		},
		{
			name:    "fractional id rejected",
			input:   `{"id":1.5}`,
			wantErr: true,
		},
		{
			name:    "numeric name rejected",
			input:   `{"id":1,"name":5}`,
			wantErr: true,
		},
		{
			name:    "array rejected",
			input:   `[1,2]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			var got Product
			err := json.Unmarshal([]byte(tt.input), &got)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Errorf("Unmarshal() expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Unmarshal() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestProduct_UnmarshalJSON_Null(t *testing.T) {
	// Arrange
	p := Product{ID: 5, Name: "kept"}

	// Act
	err := json.Unmarshal([]byte(`null`), &p)

	// Assert
	if err != nil {
		t.Fatalf("Unmarshal(null) error = %v", err)
	}
	if p.ID != 5 || p.Name != "kept" {
		t.Errorf("Unmarshal(null) modified product: %+v", p)
	}
}

func TestProduct_RoundTripPreservesUnknownMembers(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantID int
	}{
		{name: "unknown members", input: `[{"id":1,"name":"A","sku":"X-1"},{"id":2,"name":"B","meta":{"k":[1,2]}}]`, wantID: 1},
		{name: "explicit zero price", input: `[{"id":1,"name":"A","price":0}]`, wantID: 1},
		{name: "empty name", input: `[{"id":1,"name":""}]`, wantID: 1},
		{name: "null description", input: `[{"id":1,"description":null}]`, wantID: 1},
		{name: "case variant member", input: `[{"id":1,"Name":"A"}]`, wantID: 1},
		{name: "upper-case ID alongside id", input: `[{"id":1,"ID":5}]`, wantID: 1},
		{name: "trailing zero price", input: `[{"id":1,"price":1.50}]`, wantID: 1},
		{name: "price beyond float64 precision", input: `[{"id":1,"price":12345678901234567890}]`, wantID: 1},
		{name: "escaped name", input: `[{"id":1,"name":"caf\u00e9"}]`, wantID: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			var products []Product
			if err := json.Unmarshal([]byte(tt.input), &products); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			out, err := json.Marshal(products)

			// Assert
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(out) != tt.input {
				t.Errorf("round trip = %s, want %s", out, tt.input)
			}
			if _, found := FindByID(products, tt.wantID); !found {
				t.Errorf("FindByID(%d) found nothing in %+v", tt.wantID, products)
			}
		})
	}
}

func TestFindByID(t *testing.T) {
	products := []Product{
		{ID: 1, Name: "first"},
		{ID: 2, Name: "second"},
		{ID: 1, Name: "duplicate"},
	}

	tests := []struct {
		name      string
		products  []Product
		id        int
		wantFound bool
		wantName  string
	}{
		{"present", products, 2, true, "second"},
		{"duplicate id returns first match", products, 1, true, "first"},
		{"absent", products, 3, false, ""},
		{"empty collection", nil, 1, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			got, found := FindByID(tt.products, tt.id)

			// Assert
			if found != tt.wantFound {
				t.Fatalf("FindByID() found = %v, want %v", found, tt.wantFound)
			}
			if got.Name != tt.wantName {
				t.Errorf("FindByID() name = %q, want %q", got.Name, tt.wantName)
			}
		})
	}
}

func TestNewProductCreatedEvent(t *testing.T) {
	// Arrange
	p := Product{ID: 9, Name: "Widget"}
	before := time.Now().UTC()

	// Act
	event := NewProductCreatedEvent(p)

	// Assert
	if event.Type != EventTypeProductCreated {
		t.Errorf("Type = %s, want %s", event.Type, EventTypeProductCreated)
	}
	if event.Product == nil || event.Product.ID != 9 {
		t.Errorf("Product = %+v, want id 9", event.Product)
	}
	if event.Timestamp.Before(before) {
		t.Error("Timestamp should not precede event creation")
	}
}

func TestProductEvent_JSON(t *testing.T) {
	// Arrange
	event := ProductEvent{
		Type:      EventTypeProductCreated,
		Product:   &Product{ID: 1, Name: "A"},
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	// Act
	data, err := json.Marshal(event)

	// Assert
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"type":"product_created","product":{"id":1,"name":"A"},"timestamp":"2024-01-02T03:04:05Z"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}
