package entities

// DefaultMappings returns the built-in entity table. Native parameters are
// the equality filters the Productboard collection endpoints accept.
func DefaultMappings() []Mapping {
	return []Mapping{
		{
			Type:          "features",
			Endpoint:      "/features",
			Singular:      "feature",
			Plural:        "features",
			SummaryFields: []string{"id", "name", "status.name", "owner.email", "type"},
			Fields: map[string]Field{
				"name":                {Kind: KindString},
				"description":         {Kind: KindString},
				"type":                {Kind: KindString},
				"status.id":           {DisplayName: "status id", Kind: KindRef, NativeParam: "status.id"},
				"status.name":         {DisplayName: "status", Kind: KindString, NativeParam: "status.name"},
				"parent.id":           {DisplayName: "parent", Kind: KindRef, NativeParam: "parent.id"},
				"owner.email":         {DisplayName: "owner", Kind: KindString, NativeParam: "owner.email"},
				"archived":            {Kind: KindBool, NativeParam: "archived"},
				"createdAt":           {DisplayName: "created", Kind: KindDate},
				"updatedAt":           {DisplayName: "updated", Kind: KindDate},
				"timeframe.startDate": {DisplayName: "start date", Kind: KindDate},
				"timeframe.endDate":   {DisplayName: "end date", Kind: KindDate},
			},
			Nested: &NestedMarker{Field: "type", Value: "subfeature"},
		},
		{
			Type:          "components",
			Endpoint:      "/components",
			Singular:      "component",
			Plural:        "components",
			SummaryFields: []string{"id", "name", "parent", "owner.email"},
			Fields: map[string]Field{
				"name":        {Kind: KindString},
				"description": {Kind: KindString},
				"owner.email": {DisplayName: "owner", Kind: KindString},
				"createdAt":   {DisplayName: "created", Kind: KindDate},
				"updatedAt":   {DisplayName: "updated", Kind: KindDate},
			},
			Nested: &NestedMarker{Field: "parent.component.id"},
		},
		{
			Type:          "products",
			Endpoint:      "/products",
			Singular:      "product",
			Plural:        "products",
			SummaryFields: []string{"id", "name", "owner.email"},
			Fields: map[string]Field{
				"name":        {Kind: KindString},
				"description": {Kind: KindString},
				"owner.email": {DisplayName: "owner", Kind: KindString},
				"createdAt":   {DisplayName: "created", Kind: KindDate},
			},
		},
		{
			Type:          "notes",
			Endpoint:      "/notes",
			Singular:      "note",
			Plural:        "notes",
			NameField:     "title",
			SummaryFields: []string{"id", "title", "state", "company.id", "owner.email", "createdAt"},
			Fields: map[string]Field{
				"title":         {Kind: KindString},
				"content":       {Kind: KindString},
				"state":         {Kind: KindString},
				"source.origin": {DisplayName: "source", Kind: KindString},
				"company.id":    {DisplayName: "company", Kind: KindRef, NativeParam: "companyId"},
				"owner.email":   {DisplayName: "owner", Kind: KindString, NativeParam: "ownerEmail"},
				"tags":          {Kind: KindString},
				"createdAt":     {DisplayName: "created", Kind: KindDate},
				"updatedAt":     {DisplayName: "updated", Kind: KindDate},
			},
		},
		{
			Type:          "companies",
			Endpoint:      "/companies",
			Singular:      "company",
			Plural:        "companies",
			SummaryFields: []string{"id", "name", "domain"},
			Fields: map[string]Field{
				"name":        {Kind: KindString},
				"domain":      {Kind: KindString},
				"description": {Kind: KindString},
				"hasNotes":    {DisplayName: "has notes", Kind: KindBool, NativeParam: "hasNotes"},
			},
		},
		{
			Type:          "users",
			Endpoint:      "/users",
			Singular:      "user",
			Plural:        "users",
			SummaryFields: []string{"id", "name", "email", "company.id"},
			Fields: map[string]Field{
				"name":       {Kind: KindString},
				"email":      {Kind: KindString},
				"externalId": {DisplayName: "external id", Kind: KindString},
				"company.id": {DisplayName: "company", Kind: KindRef},
			},
		},
		{
			Type:          "releases",
			Endpoint:      "/releases",
			Singular:      "release",
			Plural:        "releases",
			SummaryFields: []string{"id", "name", "state", "releaseGroup.id", "timeframe.endDate"},
			Fields: map[string]Field{
				"name":                {Kind: KindString},
				"description":         {Kind: KindString},
				"state":               {Kind: KindString},
				"releaseGroup.id":     {DisplayName: "release group", Kind: KindRef, NativeParam: "releaseGroup.id"},
				"archived":            {Kind: KindBool},
				"timeframe.startDate": {DisplayName: "start date", Kind: KindDate},
				"timeframe.endDate":   {DisplayName: "end date", Kind: KindDate},
			},
		},
		{
			Type:          "releaseGroups",
			Endpoint:      "/release-groups",
			Singular:      "release group",
			Plural:        "release groups",
			SummaryFields: []string{"id", "name", "isDefault"},
			Fields: map[string]Field{
				"name":        {Kind: KindString},
				"description": {Kind: KindString},
				"isDefault":   {DisplayName: "default", Kind: KindBool},
				"archived":    {Kind: KindBool},
			},
		},
		{
			Type:          "objectives",
			Endpoint:      "/objectives",
			Singular:      "objective",
			Plural:        "objectives",
			SummaryFields: []string{"id", "name", "state", "owner.email", "timeframe.endDate"},
			Fields: map[string]Field{
				"name":                {Kind: KindString},
				"description":         {Kind: KindString},
				"state":               {Kind: KindString},
				"owner.email":         {DisplayName: "owner", Kind: KindString, NativeParam: "owner.email"},
				"parent.id":           {DisplayName: "parent", Kind: KindRef, NativeParam: "parent.id"},
				"archived":            {Kind: KindBool, NativeParam: "archived"},
				"timeframe.startDate": {DisplayName: "start date", Kind: KindDate},
				"timeframe.endDate":   {DisplayName: "end date", Kind: KindDate},
			},
			Nested: &NestedMarker{Field: "parent.id"},
		},
		{
			Type:          "keyResults",
			Endpoint:      "/key-results",
			Singular:      "key result",
			Plural:        "key results",
			SummaryFields: []string{"id", "name", "objective.id", "currentValue", "targetValue"},
			Fields: map[string]Field{
				"name":         {Kind: KindString},
				"objective.id": {DisplayName: "objective", Kind: KindRef},
				"owner.email":  {DisplayName: "owner", Kind: KindString},
				"archived":     {Kind: KindBool},
			},
		},
		{
			Type:          "initiatives",
			Endpoint:      "/initiatives",
			Singular:      "initiative",
			Plural:        "initiatives",
			SummaryFields: []string{"id", "name", "state", "owner.email"},
			Fields: map[string]Field{
				"name":                {Kind: KindString},
				"description":         {Kind: KindString},
				"state":               {Kind: KindString},
				"owner.email":         {DisplayName: "owner", Kind: KindString, NativeParam: "owner.email"},
				"archived":            {Kind: KindBool, NativeParam: "archived"},
				"timeframe.startDate": {DisplayName: "start date", Kind: KindDate},
				"timeframe.endDate":   {DisplayName: "end date", Kind: KindDate},
			},
		},
		{
			Type:          "featureStatuses",
			Endpoint:      "/feature-statuses",
			Singular:      "feature status",
			Plural:        "feature statuses",
			SummaryFields: []string{"id", "name", "completed"},
			Fields: map[string]Field{
				"name":      {Kind: KindString},
				"completed": {Kind: KindBool},
			},
		},
		{
			Type:          "webhooks",
			Endpoint:      "/webhooks",
			Singular:      "webhook",
			Plural:        "webhooks",
			NameField:     "name",
			SummaryFields: []string{"id", "name", "eventType", "notification.url"},
			Fields: map[string]Field{
				"name":             {Kind: KindString},
				"eventType":        {DisplayName: "event type", Kind: KindString},
				"notification.url": {DisplayName: "url", Kind: KindString},
				"createdAt":        {DisplayName: "created", Kind: KindDate},
			},
		},
	}
}
