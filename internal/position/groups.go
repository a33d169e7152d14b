package position

// synonymGroup is a set of title terms treated as the same role family
type synonymGroup struct {
	Name  string
	Terms []string
}

// defaultGroups lists role families with English and Korean title terms.
// Terms are normalized with normalize.Title before matching.
var defaultGroups = []synonymGroup{
	{Name: "development", Terms: []string{"developer", "development", "dev", "engineer", "engineering", "software", "sw", "programmer", "개발", "개발자", "엔지니어", "소프트웨어"}},
	{Name: "backend", Terms: []string{"backend", "back-end", "back end", "server", "백엔드", "서버", "서버개발"}},
	{Name: "frontend", Terms: []string{"frontend", "front-end", "front end", "fe", "프론트엔드", "프론트"}},
	{Name: "fullstack", Terms: []string{"fullstack", "full-stack", "full stack", "풀스택"}},
	{Name: "web", Terms: []string{"web", "web developer", "웹", "웹개발"}},
	{Name: "mobile", Terms: []string{"app", "mobile", "android", "ios", "앱", "모바일", "안드로이드"}},
	{Name: "data", Terms: []string{"data", "analyst", "analytics", "data scientist", "데이터", "분석", "데이터분석", "데이터사이언스", "분석가"}},
	{Name: "ai/ml", Terms: []string{"ai", "ml", "machine learning", "deep learning", "ai/ml", "머신러닝", "인공지능", "딥러닝"}},
	{Name: "devops", Terms: []string{"devops", "infra", "infrastructure", "sre", "site reliability", "platform engineer", "cloud engineer", "데브옵스", "인프라"}},
	{Name: "product", Terms: []string{"product", "pm", "po", "product manager", "product owner", "planner", "기획", "기획자", "서비스기획", "상품기획", "프로덕트"}},
	{Name: "marketing", Terms: []string{"marketing", "marketer", "growth", "brand", "performance marketing", "digital marketing", "content marketing", "cmo", "마케팅", "마케터", "그로스", "브랜드", "퍼포먼스"}},
	{Name: "design", Terms: []string{"design", "designer", "ux", "ui", "ux/ui", "ui/ux", "product design", "graphic", "디자인", "디자이너", "그래픽"}},
	{Name: "sales", Terms: []string{"sales", "account executive", "account manager", "bd", "business development", "영업", "세일즈"}},
	{Name: "hr", Terms: []string{"hr", "human resources", "recruiter", "recruiting", "talent acquisition", "hrbp", "people", "인사", "채용", "리크루터", "인적자원"}},
	{Name: "finance", Terms: []string{"finance", "financial", "accounting", "accountant", "treasury", "재무", "회계", "경리", "회계사"}},
	{Name: "legal", Terms: []string{"legal", "lawyer", "counsel", "compliance", "법무", "법률", "준법"}},
	{Name: "operations", Terms: []string{"operations", "operation", "ops", "운영", "오퍼레이션"}},
	{Name: "customer support", Terms: []string{"cs", "customer service", "customer support", "customer success", "support", "고객지원", "고객서비스", "상담"}},
	{Name: "strategy", Terms: []string{"strategy", "strategic", "전략", "경영전략", "사업전략"}},
	{Name: "consulting", Terms: []string{"consulting", "consultant", "컨설팅", "컨설턴트"}},
	{Name: "research", Terms: []string{"research", "researcher", "r&d", "scientist", "연구", "연구원", "연구개발"}},
	{Name: "qa", Terms: []string{"qa", "quality assurance", "quality", "tester", "test engineer", "품질", "품질관리"}},
}

// genericRoleWords carry no role family and are ignored for root matching
var genericRoleWords = []string{
	"manager", "management", "specialist", "staff", "assistant", "associate",
	"lead", "head", "senior", "junior", "intern", "internship", "team", "member",
	"officer", "director", "chief", "executive", "entry", "level", "new", "grad",
	"담당", "담당자", "매니저", "팀장", "사원", "신입", "경력", "인턴", "직무",
}
