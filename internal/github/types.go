package github

// Release 映射 releases API 的响应体，仅保留协议需要的字段。
type Release struct {
	ID              int64   `json:"id"`
	TagName         string  `json:"tag_name"`
	TargetCommitish string  `json:"target_commitish"`
	Name            string  `json:"name"`
	Draft           bool    `json:"draft"`
	Prerelease      bool    `json:"prerelease"`
	Assets          []Asset `json:"assets"`
}

// Asset 映射 release 资产对象。同名资产在同一 release 下至多存在一个。
type Asset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	State              string `json:"state"`
	ContentType        string `json:"content_type"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Repository 仅用于解析默认分支。
type Repository struct {
	DefaultBranch string `json:"default_branch"`
}

// Branch 映射分支查询响应，取 head commit 的 SHA。
type Branch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// Ref 映射 git ref 对象；轻量 tag 的 Object.SHA 即指向的提交。
type Ref struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA  string `json:"sha"`
		Type string `json:"type"`
	} `json:"object"`
}

// createReleaseRequest 是惰性建 release 的最小载荷：非草稿、非预发布。
type createReleaseRequest struct {
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// createRefRequest 是惰性建 tag 的最小载荷：指向默认分支当前 head。
type createRefRequest struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}
